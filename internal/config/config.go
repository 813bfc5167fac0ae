// Package config provides application configuration management.
// It loads settings from environment variables (optionally seeded from a
// .env file) and validates them for the server or the ingestion command.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ValidationMode selects which settings are mandatory.
type ValidationMode int

const (
	// ServerMode requires a chat model provider.
	ServerMode ValidationMode = iota
	// IngestMode requires an embedding provider and a source.
	IngestMode
)

// Config holds all application configuration
type Config struct {
	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration
	DataDir         string

	// Chat sessions
	TurnTimeout     time.Duration
	SessionIdleTTL  time.Duration // 0 keeps sessions until closed
	SessionPersist  bool
	MaxMessageChars int

	// Rate limits
	GlobalRateRPS     float64
	SessionRateBurst  float64
	SessionRateRefill float64 // tokens per second

	// LLM Configuration
	LLMProviders       []string
	LLMTemperature     float64
	GeminiAPIKey       string
	GroqAPIKey         string
	CerebrasAPIKey     string
	GeminiChatModels   []string
	GroqChatModels     []string
	CerebrasChatModels []string

	// Embedding Configuration
	EmbeddingProvider string // "gemini" or "openai" (any OpenAI-compatible endpoint)
	EmbeddingModel    string
	EmbeddingBaseURL  string
	EmbeddingAPIKey   string

	// Course index
	CollectionName string
	TopK           int
	VectorCompress bool

	// Ingestion
	IngestSource      string // local path, or object key when R2 is enabled
	IngestBatchSize   int
	IngestStartID     int
	IngestConcurrency int

	// LINE channel
	LineEnabled       bool
	LineChannelToken  string
	LineChannelSecret string

	// R2
	R2Enabled         bool
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string

	// Sentry (Better Stack errors)
	SentryEnabled     bool
	SentryToken       string
	SentryHost        string
	SentryEnvironment string
	SentrySampleRate  float64

	// Better Stack logs
	BetterStackToken    string
	BetterStackEndpoint string

	// Metrics Authentication
	MetricsUsername string
	MetricsPassword string // empty disables auth
}

// Load reads configuration for server mode.
func Load() (*Config, error) {
	return LoadForMode(ServerMode)
}

// LoadForMode reads configuration and validates it for mode.
// It attempts to load a .env file first; a missing file is not an error.
func LoadForMode(mode ValidationMode) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv(EnvPort, "10000"),
		LogLevel:        getEnv(EnvLogLevel, "info"),
		ShutdownTimeout: getDurationEnv(EnvShutdownTimeout, 30*time.Second),
		DataDir:         getEnv(EnvDataDir, getDefaultDataDir()),

		TurnTimeout:     getDurationEnv(EnvTurnTimeout, TurnProcessing),
		SessionIdleTTL:  getDurationEnv(EnvSessionIdleTTL, 24*time.Hour),
		SessionPersist:  getBoolEnv(EnvSessionPersist, true),
		MaxMessageChars: getIntEnv(EnvMaxMessageChars, 4000),

		GlobalRateRPS:     getFloatEnv(EnvGlobalRateRPS, 50),
		SessionRateBurst:  getFloatEnv(EnvSessionRateBurst, 10),
		SessionRateRefill: getFloatEnv(EnvSessionRateRefill, 0.2),

		LLMProviders:       getListEnv(EnvLLMProviders, []string{"groq", "gemini"}),
		LLMTemperature:     getFloatEnv(EnvLLMTemperature, 0.7),
		GeminiAPIKey:       getEnv(EnvGeminiAPIKey, ""),
		GroqAPIKey:         getEnv(EnvGroqAPIKey, ""),
		CerebrasAPIKey:     getEnv(EnvCerebrasAPIKey, ""),
		GeminiChatModels:   getListEnv(EnvGeminiChatModels, nil),
		GroqChatModels:     getListEnv(EnvGroqChatModels, nil),
		CerebrasChatModels: getListEnv(EnvCerebrasChatModels, nil),

		EmbeddingProvider: strings.ToLower(getEnv(EnvEmbeddingProvider, "gemini")),
		EmbeddingModel:    getEnv(EnvEmbeddingModel, ""),
		EmbeddingBaseURL:  getEnv(EnvEmbeddingBaseURL, ""),
		EmbeddingAPIKey:   getEnv(EnvEmbeddingAPIKey, ""),

		CollectionName: getEnv(EnvCollectionName, "courses_collection"),
		TopK:           getIntEnv(EnvTopK, 6),
		VectorCompress: getBoolEnv(EnvVectorCompress, true),

		IngestSource:      getEnv(EnvIngestSource, ""),
		IngestBatchSize:   getIntEnv(EnvIngestBatchSize, 256),
		IngestStartID:     getIntEnv(EnvIngestStartID, 0),
		IngestConcurrency: getIntEnv(EnvIngestConcurrency, 4),

		LineEnabled:       getBoolEnv(EnvLineEnabled, false),
		LineChannelToken:  getEnv(EnvLineChannelAccessToken, ""),
		LineChannelSecret: getEnv(EnvLineChannelSecret, ""),

		R2Enabled:         getBoolEnv(EnvR2Enabled, false),
		R2AccountID:       getEnv(EnvR2AccountID, ""),
		R2AccessKeyID:     getEnv(EnvR2AccessKeyID, ""),
		R2SecretAccessKey: getEnv(EnvR2SecretAccessKey, ""),
		R2BucketName:      getEnv(EnvR2BucketName, ""),

		SentryEnabled:     getBoolEnv(EnvSentryEnabled, false),
		SentryToken:       getEnv(EnvSentryToken, ""),
		SentryHost:        getEnv(EnvSentryHost, ""),
		SentryEnvironment: getEnv(EnvSentryEnvironment, "production"),
		SentrySampleRate:  getFloatEnv(EnvSentrySampleRate, 1.0),

		BetterStackToken:    getEnv(EnvBetterStackToken, ""),
		BetterStackEndpoint: getEnv(EnvBetterStackEndpoint, ""),

		MetricsUsername: getEnv(EnvMetricsUsername, "prometheus"),
		MetricsPassword: getEnv(EnvMetricsPassword, ""),
	}

	if err := cfg.ValidateForMode(mode); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks server mode requirements.
func (c *Config) Validate() error {
	return c.ValidateForMode(ServerMode)
}

// ValidateForMode checks required values and ranges, reporting every problem at once.
func (c *Config) ValidateForMode(mode ValidationMode) error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvDataDir))
	}
	if c.TopK <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", EnvTopK, c.TopK))
	}
	if c.CollectionName == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvCollectionName))
	}
	if !c.HasEmbeddingProvider() {
		errs = append(errs, fmt.Errorf("embedding provider %q is not configured", c.EmbeddingProvider))
	}

	switch mode {
	case ServerMode:
		if c.Port == "" {
			errs = append(errs, fmt.Errorf("%s is required", EnvPort))
		}
		if !c.HasLLMProvider() {
			errs = append(errs, errors.New("at least one LLM provider API key is required"))
		}
		if c.TurnTimeout <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvTurnTimeout, c.TurnTimeout))
		}
		if c.SessionIdleTTL < 0 {
			errs = append(errs, fmt.Errorf("%s cannot be negative, got %v", EnvSessionIdleTTL, c.SessionIdleTTL))
		}
		if c.SessionRateBurst <= 0 || c.SessionRateRefill <= 0 {
			errs = append(errs, errors.New("session rate limit burst and refill must be positive"))
		}
		if c.LineEnabled && (c.LineChannelToken == "" || c.LineChannelSecret == "") {
			errs = append(errs, fmt.Errorf("%s and %s are required when LINE is enabled",
				EnvLineChannelAccessToken, EnvLineChannelSecret))
		}
	case IngestMode:
		if c.IngestSource == "" {
			errs = append(errs, fmt.Errorf("%s is required", EnvIngestSource))
		}
		if c.IngestBatchSize <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", EnvIngestBatchSize, c.IngestBatchSize))
		}
		if c.IngestStartID < 0 {
			errs = append(errs, fmt.Errorf("%s cannot be negative, got %d", EnvIngestStartID, c.IngestStartID))
		}
	}

	if c.R2Enabled && (c.R2AccountID == "" || c.R2AccessKeyID == "" || c.R2SecretAccessKey == "" || c.R2BucketName == "") {
		errs = append(errs, errors.New("R2 account, credentials and bucket are required when R2 is enabled"))
	}
	if c.SentryEnabled && (c.SentryToken == "" || c.SentryHost == "") {
		errs = append(errs, fmt.Errorf("%s and %s are required when Sentry is enabled", EnvSentryToken, EnvSentryHost))
	}

	return errors.Join(errs...)
}

// HasLLMProvider returns true if at least one chat provider is configured.
func (c *Config) HasLLMProvider() bool {
	return c.GeminiAPIKey != "" || c.GroqAPIKey != "" || c.CerebrasAPIKey != ""
}

// HasEmbeddingProvider reports whether the selected embedding backend has credentials.
func (c *Config) HasEmbeddingProvider() bool {
	switch c.EmbeddingProvider {
	case "gemini":
		return c.GeminiAPIKey != ""
	case "openai":
		// Self-hosted OpenAI-compatible servers often need no key.
		return c.EmbeddingBaseURL != "" || c.EmbeddingAPIKey != ""
	default:
		return false
	}
}

// SQLitePath returns the full path to the session database file
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "sessions.db")
}

// VectorPath returns the directory of the persistent vector store.
func (c *Config) VectorPath() string {
	return filepath.Join(c.DataDir, "vectors")
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getBoolEnv accepts the strconv.ParseBool spellings.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated value, dropping blanks.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for part := range strings.SplitSeq(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// getDefaultDataDir returns platform-specific default data directory
func getDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return "./data"
	}
	return "/data"
}
