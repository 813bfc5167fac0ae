package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// openaiChatModel talks to an OpenAI-compatible chat completions endpoint.
type openaiChatModel struct {
	client      openai.Client
	model       string
	provider    Provider
	temperature float64
}

func newOpenAIChatModel(provider Provider, apiKey, model string, temperature float64) (*openaiChatModel, error) {
	baseURL, ok := ProviderEndpoint[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported OpenAI-compatible provider: %s", provider)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%s: api key is required", provider)
	}
	if model == "" {
		return nil, fmt.Errorf("%s: model is required", provider)
	}

	return &openaiChatModel{
		client: openai.NewClient(
			option.WithBaseURL(baseURL),
			option.WithAPIKey(apiKey),
		),
		model:       model,
		provider:    provider,
		temperature: temperature,
	}, nil
}

// Complete sends the transcript and returns the first choice's text.
func (m *openaiChatModel) Complete(ctx context.Context, req Request) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(msg.Content))
		default:
			msgs = append(msgs, openai.UserMessage(msg.Content))
		}
	}

	start := time.Now()
	resp, err := m.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       m.model,
		Messages:    msgs,
		Temperature: openai.Float(m.temperature),
	})
	if err != nil {
		return "", WrapError(fmt.Errorf("chat completion: %w", err), m.provider)
	}
	if len(resp.Choices) == 0 {
		return "", WrapError(errors.New("empty response"), m.provider)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", WrapError(errors.New("empty completion"), m.provider)
	}

	slog.DebugContext(ctx, "chat completion finished",
		"provider", m.provider,
		"model", m.model,
		"input_tokens", resp.Usage.PromptTokens,
		"output_tokens", resp.Usage.CompletionTokens,
		"duration_ms", time.Since(start).Milliseconds())
	return text, nil
}

func (m *openaiChatModel) Provider() Provider { return m.provider }

func (m *openaiChatModel) Model() string { return m.model }

// Close is a no-op; the openai-go client holds no resources.
func (m *openaiChatModel) Close() error { return nil }
