// Package config defines environment variable keys for configuration.
package config

//nolint:gosec,revive // Environment variable keys are not credentials and do not need per-const comments.
const (
	// Server
	EnvPort            = "ADVISOR_PORT"
	EnvLogLevel        = "ADVISOR_LOG_LEVEL"
	EnvShutdownTimeout = "ADVISOR_SHUTDOWN_TIMEOUT"
	EnvDataDir         = "ADVISOR_DATA_DIR"

	// Chat sessions
	EnvTurnTimeout     = "ADVISOR_TURN_TIMEOUT"
	EnvSessionIdleTTL  = "ADVISOR_SESSION_IDLE_TTL"
	EnvSessionPersist  = "ADVISOR_SESSION_PERSIST"
	EnvMaxMessageChars = "ADVISOR_MAX_MESSAGE_CHARS"

	// Rate Limits
	EnvGlobalRateRPS     = "ADVISOR_GLOBAL_RATE_RPS"
	EnvSessionRateBurst  = "ADVISOR_SESSION_RATE_BURST"
	EnvSessionRateRefill = "ADVISOR_SESSION_RATE_REFILL"

	// LLM
	EnvLLMProviders       = "ADVISOR_LLM_PROVIDERS"
	EnvLLMTemperature     = "ADVISOR_LLM_TEMPERATURE"
	EnvGeminiAPIKey       = "ADVISOR_GEMINI_API_KEY"
	EnvGroqAPIKey         = "ADVISOR_GROQ_API_KEY"
	EnvCerebrasAPIKey     = "ADVISOR_CEREBRAS_API_KEY"
	EnvGeminiChatModels   = "ADVISOR_GEMINI_CHAT_MODELS"
	EnvGroqChatModels     = "ADVISOR_GROQ_CHAT_MODELS"
	EnvCerebrasChatModels = "ADVISOR_CEREBRAS_CHAT_MODELS"

	// Embeddings
	EnvEmbeddingProvider = "ADVISOR_EMBEDDING_PROVIDER"
	EnvEmbeddingModel    = "ADVISOR_EMBEDDING_MODEL"
	EnvEmbeddingBaseURL  = "ADVISOR_EMBEDDING_BASE_URL"
	EnvEmbeddingAPIKey   = "ADVISOR_EMBEDDING_API_KEY"

	// Course index
	EnvCollectionName = "ADVISOR_COLLECTION_NAME"
	EnvTopK           = "ADVISOR_TOP_K"
	EnvVectorCompress = "ADVISOR_VECTOR_COMPRESS"

	// Ingestion
	EnvIngestSource      = "ADVISOR_INGEST_SOURCE"
	EnvIngestBatchSize   = "ADVISOR_INGEST_BATCH_SIZE"
	EnvIngestStartID     = "ADVISOR_INGEST_START_ID"
	EnvIngestConcurrency = "ADVISOR_INGEST_CONCURRENCY"

	// LINE channel
	EnvLineEnabled            = "ADVISOR_LINE_ENABLED"
	EnvLineChannelAccessToken = "ADVISOR_LINE_CHANNEL_ACCESS_TOKEN"
	EnvLineChannelSecret      = "ADVISOR_LINE_CHANNEL_SECRET"

	// R2 object storage
	EnvR2Enabled         = "ADVISOR_R2_ENABLED"
	EnvR2AccountID       = "ADVISOR_R2_ACCOUNT_ID"
	EnvR2AccessKeyID     = "ADVISOR_R2_ACCESS_KEY_ID"
	EnvR2SecretAccessKey = "ADVISOR_R2_SECRET_ACCESS_KEY"
	EnvR2BucketName      = "ADVISOR_R2_BUCKET_NAME"

	// Sentry
	EnvSentryEnabled          = "ADVISOR_SENTRY_ENABLED"
	EnvSentryToken            = "ADVISOR_SENTRY_TOKEN"
	EnvSentryHost             = "ADVISOR_SENTRY_HOST"
	EnvSentryEnvironment      = "ADVISOR_SENTRY_ENVIRONMENT"
	EnvSentrySampleRate       = "ADVISOR_SENTRY_SAMPLE_RATE"

	// Better Stack
	EnvBetterStackToken    = "ADVISOR_BETTERSTACK_TOKEN"
	EnvBetterStackEndpoint = "ADVISOR_BETTERSTACK_ENDPOINT"

	// Metrics auth
	EnvMetricsUsername = "ADVISOR_METRICS_USERNAME"
	EnvMetricsPassword = "ADVISOR_METRICS_PASSWORD"
)
