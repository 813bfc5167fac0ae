// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/garyellow/edu-advisor/internal/advisor"
	"github.com/garyellow/edu-advisor/internal/api"
	"github.com/garyellow/edu-advisor/internal/buildinfo"
	"github.com/garyellow/edu-advisor/internal/config"
	"github.com/garyellow/edu-advisor/internal/genai"
	"github.com/garyellow/edu-advisor/internal/logger"
	"github.com/garyellow/edu-advisor/internal/metrics"
	"github.com/garyellow/edu-advisor/internal/ratelimit"
	"github.com/garyellow/edu-advisor/internal/retrieval"
	"github.com/garyellow/edu-advisor/internal/roadmap"
	"github.com/garyellow/edu-advisor/internal/sentry"
	"github.com/garyellow/edu-advisor/internal/storage"
	"github.com/garyellow/edu-advisor/internal/vectorstore"
	"github.com/garyellow/edu-advisor/internal/webhook"
)

// pinger is satisfied by *storage.DB.
type pinger interface {
	Ping(ctx context.Context) error
}

// courseIndex is the part of *vectorstore.Store the probes and gauges read.
type courseIndex interface {
	Count(collection string) int
	VectorSize(collection string) (int, bool)
}

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg      *config.Config
	logger   *logger.Logger
	db       *storage.DB
	pinger   pinger // nil when sessions are memory-only
	index    courseIndex
	metrics  *metrics.Metrics
	registry *prometheus.Registry

	chat           *genai.FallbackChat
	sessions       *advisor.SessionManager
	sessionLimiter *ratelimit.KeyedLimiter
	webhookHandler *webhook.Handler // nil when LINE is disabled
	server         *http.Server

	wg sync.WaitGroup // background goroutines
}

// Initialize creates and initializes a new application with all dependencies.
func Initialize(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logger.NewWithOptions(cfg.LogLevel, os.Stdout, logger.Options{
		BetterStackToken:    cfg.BetterStackToken,
		BetterStackEndpoint: cfg.BetterStackEndpoint,
	})

	log = log.WithField("service", "edu-advisor").WithField("release", buildinfo.Release())
	if host, err := os.Hostname(); err == nil && host != "" {
		log = log.WithField("instance_id", host)
	}

	// Package-level slog.*Context calls (genai) go through the same handlers.
	slog.SetDefault(log.Logger)

	log.Info("Initializing application...")
	if cfg.BetterStackToken != "" {
		log.WithField("endpoint", cfg.BetterStackEndpoint).Info("Better Stack logging enabled")
	}

	if cfg.SentryEnabled {
		err := sentry.Initialize(sentry.Config{
			Token:       cfg.SentryToken,
			Host:        cfg.SentryHost,
			Environment: cfg.SentryEnvironment,
			Release:     buildinfo.Release(),
			SampleRate:  cfg.SentrySampleRate,
		})
		if err != nil {
			log.WithError(err).Warn("Sentry initialization failed, error reporting disabled")
		} else {
			log.WithField("host", cfg.SentryHost).Info("Error reporting enabled")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	m := metrics.New(registry)
	metrics.InitGlobal(m)

	app := &Application{
		cfg:      cfg,
		logger:   log,
		metrics:  m,
		registry: registry,
	}

	var store advisor.SessionStore
	if cfg.SessionPersist {
		db, err := storage.New(ctx, cfg.SQLitePath())
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		app.db = db
		app.pinger = db
		store = db
		log.WithField("path", cfg.SQLitePath()).Info("Session database connected")
	} else {
		log.Info("Session persistence disabled, sessions are kept in memory")
	}

	index, err := vectorstore.Open(cfg.VectorPath(), cfg.VectorCompress, log)
	if err != nil {
		app.closeDB()
		return nil, fmt.Errorf("vector store: %w", err)
	}
	app.index = index
	if _, ok := index.VectorSize(cfg.CollectionName); !ok {
		log.WithField("collection", cfg.CollectionName).
			Warn("Course collection not found; run the ingest command before asking for roadmaps")
		sentry.CaptureMessage("course collection " + cfg.CollectionName + " not found at startup")
	} else {
		log.WithField("collection", cfg.CollectionName).
			WithField("courses", index.Count(cfg.CollectionName)).
			Info("Course index loaded")
	}

	chat, err := genai.NewChat(ctx, BuildLLMConfig(cfg))
	if err != nil {
		app.closeDB()
		return nil, fmt.Errorf("chat model: %w", err)
	}
	app.chat = chat

	embedder, err := genai.NewEmbedder(ctx, BuildEmbeddingConfig(cfg))
	if err != nil {
		app.closeDB()
		return nil, fmt.Errorf("embedder: %w", err)
	}

	app.sessions = advisor.NewSessionManager(store, cfg.SessionIdleTTL, log)
	controller := advisor.NewController(
		retrieval.New(embedder, index, cfg.CollectionName),
		roadmap.NewGenerator(chat, log),
		chat,
		cfg.TopK,
		log,
		advisor.WithPersister(app.sessions),
		advisor.WithMetrics(m),
	)

	app.sessionLimiter = ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "session",
		Burst:         cfg.SessionRateBurst,
		RefillRate:    cfg.SessionRateRefill,
		CleanupPeriod: config.RateLimiterCleanupInterval,
		Metrics:       m,
	})

	apiHandler := api.NewHandler(api.Config{
		Sessions:    app.sessions,
		Controller:  controller,
		Limiter:     app.sessionLimiter,
		Metrics:     m,
		Logger:      log,
		TurnTimeout: cfg.TurnTimeout,
		MaxChars:    cfg.MaxMessageChars,
	})

	if cfg.LineEnabled {
		app.webhookHandler, err = webhook.NewHandler(webhook.HandlerConfig{
			ChannelSecret: cfg.LineChannelSecret,
			ChannelToken:  cfg.LineChannelToken,
			Sessions:      app.sessions,
			Controller:    controller,
			TurnTimeout:   cfg.TurnTimeout,
			GlobalRPS:     cfg.GlobalRateRPS,
			Metrics:       m,
			Logger:        log,
		})
		if err != nil {
			app.closeDB()
			return nil, fmt.Errorf("webhook: %w", err)
		}
		log.Info("LINE channel enabled")
	}

	gin.SetMode(gin.ReleaseMode)
	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.router(apiHandler),
		ReadHeaderTimeout: config.HTTPRead,
		ReadTimeout:       config.HTTPRead,
		WriteTimeout:      config.HTTPWrite,
		IdleTimeout:       config.HTTPIdle,
	}

	log.Info("Initialization complete")
	return app, nil
}

// BuildLLMConfig creates an LLMConfig from the application config.
func BuildLLMConfig(cfg *config.Config) genai.LLMConfig {
	llmCfg := genai.DefaultLLMConfig()

	llmCfg.Gemini.APIKey = cfg.GeminiAPIKey
	llmCfg.Groq.APIKey = cfg.GroqAPIKey
	llmCfg.Cerebras.APIKey = cfg.CerebrasAPIKey
	if cfg.LLMTemperature > 0 {
		llmCfg.Temperature = cfg.LLMTemperature
	}

	if len(cfg.GeminiChatModels) > 0 {
		llmCfg.Gemini.ChatModels = cfg.GeminiChatModels
	}
	if len(cfg.GroqChatModels) > 0 {
		llmCfg.Groq.ChatModels = cfg.GroqChatModels
	}
	if len(cfg.CerebrasChatModels) > 0 {
		llmCfg.Cerebras.ChatModels = cfg.CerebrasChatModels
	}

	if len(cfg.LLMProviders) > 0 {
		providers := make([]genai.Provider, 0, len(cfg.LLMProviders))
		for _, name := range cfg.LLMProviders {
			p, ok := genai.ParseProvider(name)
			if !ok || p == genai.ProviderOpenAI {
				slog.Warn("Ignoring unsupported chat provider", "name", name)
				continue
			}
			providers = append(providers, p)
		}
		if len(providers) > 0 {
			llmCfg.Providers = providers
		}
	}

	return llmCfg
}

// BuildEmbeddingConfig creates the embedder settings. Gemini reuses the
// chat API key unless a dedicated embedding key is set.
func BuildEmbeddingConfig(cfg *config.Config) genai.EmbeddingConfig {
	ec := genai.EmbeddingConfig{
		Model:       cfg.EmbeddingModel,
		APIKey:      cfg.EmbeddingAPIKey,
		BaseURL:     cfg.EmbeddingBaseURL,
		RetryConfig: genai.DefaultRetryConfig(),
	}

	switch cfg.EmbeddingProvider {
	case "openai":
		ec.Provider = genai.ProviderOpenAI
	default:
		ec.Provider = genai.ProviderGemini
		if ec.APIKey == "" {
			ec.APIKey = cfg.GeminiAPIKey
		}
	}
	return ec
}

// Run starts the HTTP server and background jobs, then blocks until
// SIGINT or SIGTERM.
//
// Shutdown order: cancel background jobs and wait for them, stop accepting
// requests, drain LINE events, then close resources.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.startBackgroundJobs(ctx)
	serverErr := a.startHTTPServer()

	select {
	case sig := <-a.shutdownSignal():
		a.logger.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErr:
		a.logger.WithError(err).Error("HTTP server stopped unexpectedly")
	}

	cancel()

	a.logger.Info("Waiting for background jobs to finish...")
	start := time.Now()
	a.wg.Wait()
	a.logger.WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("All background jobs completed")

	return a.shutdown()
}

func (a *Application) startBackgroundJobs(ctx context.Context) {
	if a.cfg.SessionIdleTTL > 0 {
		a.wg.Go(func() {
			a.sweepSessions(ctx)
		})
	}
	a.wg.Go(func() {
		a.updateGauges(ctx)
	})
}

// startHTTPServer serves in a goroutine; the channel receives a fatal
// listen error.
func (a *Application) startHTTPServer() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh
}

func (a *Application) shutdownSignal() <-chan os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return quit
}

// shutdown stops the HTTP server and closes resources. Call it after
// background jobs have finished.
func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
	}

	if a.webhookHandler != nil {
		a.logger.Info("Waiting for LINE events to complete...")
		if err := a.webhookHandler.Shutdown(shutdownCtx); err != nil {
			a.logger.WithError(err).Warn("Webhook handler shutdown timeout")
		}
	}

	a.logger.Info("Closing resources...")

	if a.chat != nil {
		if err := a.chat.Close(); err != nil {
			a.logger.WithError(err).WithField("component", "chat").Error("Component close error")
		}
	}
	if a.sessionLimiter != nil {
		a.sessionLimiter.Stop()
	}
	a.closeDB()

	sentry.Flush(2 * time.Second)

	if err := a.logger.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Logger shutdown timed out")
	}

	a.logger.Info("Shutdown complete")
	return nil
}

func (a *Application) closeDB() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).WithField("component", "database").Error("Component close error")
	}
}

// sweepSessions evicts idle sessions until ctx ends.
func (a *Application) sweepSessions(ctx context.Context) {
	a.logger.Debug("Session sweep job started")
	defer a.logger.Debug("Session sweep job stopped")

	ticker := time.NewTicker(config.SessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.sessions.Sweep(ctx); n > 0 {
				a.logger.WithField("evicted", n).Info("Idle sessions evicted")
			}
		}
	}
}

// updateGauges periodically records session and index sizes.
func (a *Application) updateGauges(ctx context.Context) {
	a.logger.Debug("Gauge metrics job started")
	defer a.logger.Debug("Gauge metrics job stopped")

	a.recordGauges()

	ticker := time.NewTicker(config.MetricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.recordGauges()
		}
	}
}

func (a *Application) recordGauges() {
	if a.metrics == nil {
		return
	}
	if a.sessions != nil {
		a.metrics.SetActiveSessions(a.sessions.Count())
	}
	if a.index != nil {
		a.metrics.SetIndexSize(a.cfg.CollectionName, a.index.Count(a.cfg.CollectionName))
	}
}
