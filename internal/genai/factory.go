package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// NewChat builds the chat fallback chain from cfg: every model of the first
// configured provider, then every model of the next, and so on.
// Returns ErrNoChatModel when no provider has an API key.
func NewChat(ctx context.Context, cfg LLMConfig) (*FallbackChat, error) {
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = DefaultTemperature
	}

	var models []ChatModel
	for _, p := range cfg.ConfiguredProviders() {
		pc := cfg.GetProviderConfig(p)
		for _, name := range pc.ChatModels {
			m, err := newChatModel(ctx, p, pc.APIKey, name, temperature)
			if err != nil {
				slog.WarnContext(ctx, "failed to create chat model", "provider", p, "model", name, "error", err)
				continue
			}
			models = append(models, m)
		}
	}

	if len(models) == 0 {
		return nil, ErrNoChatModel
	}

	slog.InfoContext(ctx, "chat model chain configured",
		"primary", models[0].Provider(),
		"model", models[0].Model(),
		"chainSize", len(models))
	return NewFallbackChat(cfg.RetryConfig, models...), nil
}

func newChatModel(ctx context.Context, p Provider, apiKey, model string, temperature float64) (ChatModel, error) {
	switch p {
	case ProviderGemini:
		return newGeminiChatModel(ctx, apiKey, model, temperature)
	case ProviderGroq, ProviderCerebras:
		return newOpenAIChatModel(p, apiKey, model, temperature)
	default:
		return nil, fmt.Errorf("unsupported chat provider: %s", p)
	}
}

// NewEmbedder creates the embedder selected by cfg, wrapped with retry.
func NewEmbedder(ctx context.Context, cfg EmbeddingConfig) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case ProviderGemini:
		e, err = newGeminiEmbedder(ctx, cfg)
	case ProviderOpenAI:
		e, err = newOpenAIEmbedder(cfg)
	case "":
		return nil, errors.New("embedding provider is required")
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return &retryingEmbedder{inner: e, retryConfig: cfg.RetryConfig}, nil
}
