package config

import "time"

// HTTP server timeouts
const (
	// HTTPRead is the server read timeout. Chat requests are small JSON bodies.
	HTTPRead = 10 * time.Second

	// HTTPWrite must cover TurnProcessing plus response serialization.
	HTTPWrite = 95 * time.Second

	// HTTPIdle is the keep-alive idle timeout.
	HTTPIdle = 120 * time.Second
)

// Turn processing
const (
	// TurnProcessing bounds one conversational turn: at most one embedding
	// call, one vector search and one completion, each with provider retries.
	TurnProcessing = 90 * time.Second

	// ReadinessCheckTimeout bounds the /readyz probe.
	ReadinessCheckTimeout = 3 * time.Second
)

// Database
const (
	// DatabaseBusyTimeout is the SQLite busy_timeout pragma value.
	DatabaseBusyTimeout = 5 * time.Second

	// DatabaseConnMaxLifetime is the maximum lifetime of database connections.
	DatabaseConnMaxLifetime = time.Hour
)

// Background jobs
const (
	// SessionSweepInterval is how often idle sessions are evicted.
	SessionSweepInterval = 5 * time.Minute

	// MetricsUpdateInterval is how often gauge metrics are refreshed.
	MetricsUpdateInterval = time.Minute

	// RateLimiterCleanupInterval is how often idle per-session limiters are dropped.
	RateLimiterCleanupInterval = 5 * time.Minute
)

// Ingestion
const (
	// IngestBatchTimeout bounds embedding plus upsert of a single batch.
	IngestBatchTimeout = 2 * time.Minute

	// R2Download bounds fetching the source CSV from object storage.
	R2Download = 5 * time.Minute
)
