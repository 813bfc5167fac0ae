package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

// geminiChatModel generates replies through the Gemini API.
type geminiChatModel struct {
	client      *genai.Client
	model       string
	temperature float32
}

func newGeminiChatModel(ctx context.Context, apiKey, model string, temperature float64) (*geminiChatModel, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if model == "" {
		model = DefaultGeminiChatModels[0]
	}

	client, err := newGeminiClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return &geminiChatModel{client: client, model: model, temperature: float32(temperature)}, nil
}

func newGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return client, nil
}

// Complete maps the transcript to Gemini contents; assistant turns use the model role.
func (m *geminiChatModel) Complete(ctx context.Context, req Request) (string, error) {
	contents := geminiContents(req.Messages)

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(m.temperature),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	start := time.Now()
	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, cfg)
	if err != nil {
		return "", WrapError(fmt.Errorf("generate content: %w", err), ProviderGemini)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", WrapError(errors.New("empty completion"), ProviderGemini)
	}

	if resp.UsageMetadata != nil {
		slog.DebugContext(ctx, "chat completion finished",
			"provider", ProviderGemini,
			"model", m.model,
			"input_tokens", resp.UsageMetadata.PromptTokenCount,
			"output_tokens", resp.UsageMetadata.CandidatesTokenCount,
			"duration_ms", time.Since(start).Milliseconds())
	}
	return text, nil
}

func (m *geminiChatModel) Provider() Provider { return ProviderGemini }

func (m *geminiChatModel) Model() string { return m.model }

// Close is a no-op; genai.Client needs no explicit cleanup.
func (m *geminiChatModel) Close() error { return nil }

func geminiContents(msgs []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, msg := range msgs {
		var role genai.Role = genai.RoleUser
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return contents
}
