// Package genai provides chat completion and embedding clients for the
// advisor, backed by Gemini and OpenAI-compatible providers (Groq, Cerebras,
// or any self-hosted OpenAI-compatible server for embeddings).
//
// Architecture:
// - Gemini: google.golang.org/genai (official SDK)
// - Groq/Cerebras/OpenAI-compatible: github.com/openai/openai-go/v3 with a custom BaseURL
//
// Chat fallback is layered: each model is retried with backoff, then the next
// model of the same provider is tried, then the next provider in order.
package genai

import (
	"context"
	"time"
)

// Provider represents an LLM provider.
type Provider string

const (
	// ProviderGemini represents Google's Gemini API (non-OpenAI-compatible).
	ProviderGemini Provider = "gemini"
	// ProviderGroq represents Groq's API (OpenAI-compatible).
	ProviderGroq Provider = "groq"
	// ProviderCerebras represents Cerebras's API (OpenAI-compatible).
	ProviderCerebras Provider = "cerebras"
	// ProviderOpenAI is any OpenAI-compatible endpoint configured by base URL.
	ProviderOpenAI Provider = "openai"
)

// ProviderEndpoint defines the base URL for OpenAI-compatible chat providers.
var ProviderEndpoint = map[Provider]string{
	ProviderGroq:     "https://api.groq.com/openai/v1/",
	ProviderCerebras: "https://api.cerebras.ai/v1/",
}

// ParseProvider maps a config name to a Provider. ok is false for unknown names.
func ParseProvider(name string) (Provider, bool) {
	switch p := Provider(name); p {
	case ProviderGemini, ProviderGroq, ProviderCerebras, ProviderOpenAI:
		return p, true
	default:
		return "", false
	}
}

// String returns the string representation of the provider.
func (p Provider) String() string {
	return string(p)
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat transcript.
type Message struct {
	Role    Role
	Content string
}

// Request is a single completion request.
type Request struct {
	// System is the system instruction. Empty means none.
	System string
	// Messages is the ordered transcript; the last entry is normally the user turn.
	Messages []Message
	// Operation labels metrics ("chat", "roadmap").
	Operation string
}

// ChatModel produces one assistant reply for a transcript.
type ChatModel interface {
	Complete(ctx context.Context, req Request) (string, error)
	Provider() Provider
	Model() string
	Close() error
}

// Embedder turns text into dense vectors.
type Embedder interface {
	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// EmbedDocuments embeds documents for indexing, preserving input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	Provider() Provider
}

// RetryConfig defines retry behavior for LLM API calls.
// Uses AWS-recommended Full Jitter exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	MaxAttempts int
	// InitialDelay is the base delay before first retry.
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration
}

// ProviderConfig holds configuration for a single chat provider.
type ProviderConfig struct {
	APIKey string
	// ChatModels is tried in order; the first is primary.
	ChatModels []string
}

// LLMConfig holds configuration for all chat providers.
type LLMConfig struct {
	// Providers is the ordered provider chain. Providers without a key are skipped.
	Providers []Provider

	Gemini   ProviderConfig
	Groq     ProviderConfig
	Cerebras ProviderConfig

	// Temperature applies to every chat call.
	Temperature float64

	RetryConfig RetryConfig
}

// EmbeddingConfig selects and configures the embedding backend.
type EmbeddingConfig struct {
	Provider Provider // ProviderGemini or ProviderOpenAI
	Model    string
	APIKey   string
	BaseURL  string // OpenAI-compatible only
	// Dimensions requests a truncated output size when the backend supports it. 0 keeps the default.
	Dimensions int
	// BatchSize caps texts per API request.
	BatchSize int

	RetryConfig RetryConfig
}

// Default model configurations.
// First element is primary model, subsequent elements are fallbacks.
var (
	DefaultGroqChatModels     = []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"}
	DefaultGeminiChatModels   = []string{"gemini-2.5-flash", "gemini-2.5-flash-lite"}
	DefaultCerebrasChatModels = []string{"llama-3.3-70b", "llama-3.1-8b"}

	// DefaultProviders is the default provider order for fallback.
	DefaultProviders = []Provider{ProviderGroq, ProviderGemini, ProviderCerebras}
)

const (
	// DefaultTemperature is used when no temperature is configured.
	DefaultTemperature = 0.7

	// GeminiEmbeddingModel is the default Gemini embedding model.
	GeminiEmbeddingModel = "gemini-embedding-001"
	// GeminiEmbeddingDimensions is the default output size (MRL truncation).
	GeminiEmbeddingDimensions = 768
	// geminiMaxBatch is the Gemini batch embedding request limit.
	geminiMaxBatch = 100

	// OpenAIEmbeddingModel is the default model for OpenAI-compatible embedding servers.
	OpenAIEmbeddingModel = "sentence-transformers/all-MiniLM-L6-v2"
	openAIMaxBatch       = 256
)

// Retry configuration defaults
const (
	DefaultMaxRetryAttempts  = 2
	DefaultInitialRetryDelay = 500 * time.Millisecond
	DefaultMaxRetryDelay     = 3 * time.Second
)

// DefaultLLMConfig returns a default configuration. API keys must be provided separately.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Providers:   DefaultProviders,
		Gemini:      ProviderConfig{ChatModels: DefaultGeminiChatModels},
		Groq:        ProviderConfig{ChatModels: DefaultGroqChatModels},
		Cerebras:    ProviderConfig{ChatModels: DefaultCerebrasChatModels},
		Temperature: DefaultTemperature,
		RetryConfig: DefaultRetryConfig(),
	}
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  DefaultMaxRetryAttempts,
		InitialDelay: DefaultInitialRetryDelay,
		MaxDelay:     DefaultMaxRetryDelay,
	}
}

// HasAnyProvider returns true if at least one provider is configured.
func (c *LLMConfig) HasAnyProvider() bool {
	return c.Gemini.APIKey != "" || c.Groq.APIKey != "" || c.Cerebras.APIKey != ""
}

// GetProviderConfig returns the configuration for a specific provider.
func (c *LLMConfig) GetProviderConfig(p Provider) *ProviderConfig {
	switch p {
	case ProviderGemini:
		return &c.Gemini
	case ProviderGroq:
		return &c.Groq
	case ProviderCerebras:
		return &c.Cerebras
	default:
		return nil
	}
}

// ConfiguredProviders returns providers with API keys, in c.Providers order.
func (c *LLMConfig) ConfiguredProviders() []Provider {
	result := make([]Provider, 0, len(c.Providers))
	for _, p := range c.Providers {
		if pc := c.GetProviderConfig(p); pc != nil && pc.APIKey != "" {
			result = append(result, p)
		}
	}
	return result
}
