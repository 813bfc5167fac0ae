package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/edu-advisor/internal/advisor"
	"github.com/garyellow/edu-advisor/internal/api"
	"github.com/garyellow/edu-advisor/internal/config"
	"github.com/garyellow/edu-advisor/internal/ctxutil"
	"github.com/garyellow/edu-advisor/internal/genai"
	"github.com/garyellow/edu-advisor/internal/logger"
	"github.com/garyellow/edu-advisor/internal/metrics"
	"github.com/garyellow/edu-advisor/internal/ratelimit"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeIndex map[string]int

func (f fakeIndex) Count(collection string) int { return f[collection] }

func (f fakeIndex) VectorSize(collection string) (int, bool) {
	_, ok := f[collection]
	return 768, ok
}

// setupTestApp creates a minimal Application for endpoint tests.
func setupTestApp(t *testing.T) *Application {
	t.Helper()

	registry := prometheus.NewRegistry()
	return &Application{
		cfg: &config.Config{
			CollectionName:  "courses_collection",
			GlobalRateRPS:   100,
			MetricsUsername: "prometheus",
		},
		logger:   logger.New("error"),
		pinger:   fakePinger{},
		index:    fakeIndex{"courses_collection": 42},
		metrics:  metrics.New(registry),
		registry: registry,
	}
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var body map[string]any
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestLivenessCheck(t *testing.T) {
	t.Parallel()
	app := setupTestApp(t)
	app.pinger = fakePinger{err: errors.New("database is closed")}

	router := gin.New()
	router.GET("/livez", app.livenessCheck)

	w, body := get(t, router, "/livez")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alive", body["status"])
}

func TestReadinessCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		pinger   pinger
		index    fakeIndex
		want     int
		database string
		reason   string
	}{
		{
			name:     "healthy",
			pinger:   fakePinger{},
			index:    fakeIndex{"courses_collection": 42},
			want:     http.StatusOK,
			database: "connected",
		},
		{
			name:     "memory only sessions",
			pinger:   nil,
			index:    fakeIndex{"courses_collection": 42},
			want:     http.StatusOK,
			database: "disabled",
		},
		{
			name:   "database down",
			pinger: fakePinger{err: errors.New("database is closed")},
			index:  fakeIndex{"courses_collection": 42},
			want:   http.StatusServiceUnavailable,
			reason: "database unavailable",
		},
		{
			name:   "collection missing",
			pinger: fakePinger{},
			index:  fakeIndex{},
			want:   http.StatusServiceUnavailable,
			reason: "course index missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			app := setupTestApp(t)
			app.pinger = tt.pinger
			app.index = tt.index

			router := gin.New()
			router.GET("/readyz", app.readinessCheck)
			w, body := get(t, router, "/readyz")

			assert.Equal(t, tt.want, w.Code)
			if tt.want != http.StatusOK {
				assert.Equal(t, "not ready", body["status"])
				assert.Equal(t, tt.reason, body["reason"])
				return
			}
			assert.Equal(t, "ready", body["status"])
			assert.Equal(t, tt.database, body["database"])
			index, ok := body["index"].(map[string]any)
			require.True(t, ok)
			assert.InDelta(t, 42, index["courses"], 0)
		})
	}
}

func TestGlobalRateLimitMiddleware(t *testing.T) {
	t.Parallel()
	m := metrics.New(prometheus.NewRegistry())

	router := gin.New()
	router.Use(globalRateLimitMiddleware(ratelimit.New(1, 0), m))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w, _ := get(t, router, "/x")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, body := get(t, router, "/x")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.NotEmpty(t, body["error"])
	assert.InDelta(t, 1, testutil.ToFloat64(m.RateLimiterDropped.WithLabelValues("global")), 0)
}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	t.Parallel()

	var seen string
	router := gin.New()
	router.Use(securityHeadersMiddleware(), loggingMiddleware(logger.New("error")))
	router.GET("/x", func(c *gin.Context) {
		seen, _ = ctxutil.GetRequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Correlation-Id", "corr-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "corr-1", seen)
	assert.Equal(t, "corr-1", w.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestRouter(t *testing.T) {
	t.Parallel()
	app := setupTestApp(t)
	app.cfg.MetricsPassword = "secret"

	log := logger.New("error")
	handler := api.NewHandler(api.Config{
		Sessions: advisor.NewSessionManager(nil, 0, log),
		Logger:   log,
	})
	router := app.router(handler)

	w, _ := get(t, router, "/livez")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = get(t, router, "/metrics")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", basicAuth("prometheus", "secret"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	w, _ = get(t, router, "/webhook")
	assert.Equal(t, http.StatusNotFound, w.Code, "webhook is not routed when LINE is disabled")
}

func TestBuildLLMConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		LLMProviders:     []string{"gemini", "bogus", "openai", "groq"},
		LLMTemperature:   0.3,
		GeminiAPIKey:     "g-key",
		GroqAPIKey:       "q-key",
		GeminiChatModels: []string{"gemini-x"},
	}
	llm := BuildLLMConfig(cfg)

	assert.Equal(t, []genai.Provider{genai.ProviderGemini, genai.ProviderGroq}, llm.Providers)
	assert.InDelta(t, 0.3, llm.Temperature, 1e-9)
	assert.Equal(t, "g-key", llm.Gemini.APIKey)
	assert.Equal(t, []string{"gemini-x"}, llm.Gemini.ChatModels)
	assert.Equal(t, genai.DefaultGroqChatModels, llm.Groq.ChatModels)

	defaults := BuildLLMConfig(&config.Config{LLMProviders: []string{"bogus"}})
	assert.Equal(t, genai.DefaultProviders, defaults.Providers)
	assert.InDelta(t, genai.DefaultTemperature, defaults.Temperature, 1e-9)
}

func TestBuildEmbeddingConfig(t *testing.T) {
	t.Parallel()

	gemini := BuildEmbeddingConfig(&config.Config{EmbeddingProvider: "gemini", GeminiAPIKey: "g-key"})
	assert.Equal(t, genai.ProviderGemini, gemini.Provider)
	assert.Equal(t, "g-key", gemini.APIKey)

	openai := BuildEmbeddingConfig(&config.Config{
		EmbeddingProvider: "openai",
		EmbeddingBaseURL:  "http://localhost:8080/v1",
		EmbeddingModel:    "all-MiniLM-L6-v2",
		GeminiAPIKey:      "g-key",
	})
	assert.Equal(t, genai.ProviderOpenAI, openai.Provider)
	assert.Empty(t, openai.APIKey)
	assert.Equal(t, "http://localhost:8080/v1", openai.BaseURL)
	assert.Equal(t, "all-MiniLM-L6-v2", openai.Model)
}
