// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Conversation metrics
	TurnsTotal          *prometheus.CounterVec
	TurnDurationSeconds *prometheus.HistogramVec
	RoadmapsTotal       *prometheus.CounterVec
	ActiveSessions      prometheus.Gauge

	// Retrieval metrics
	RetrievalDurationSeconds prometheus.Histogram
	RetrievalResults         prometheus.Histogram
	RetrievalErrorsTotal     prometheus.Counter

	// Embedding metrics
	EmbeddingRequestsTotal *prometheus.CounterVec

	// LLM metrics
	LLMTotal           *prometheus.CounterVec
	LLMDuration        *prometheus.HistogramVec
	LLMFallbackTotal   *prometheus.CounterVec
	LLMFallbackLatency *prometheus.HistogramVec

	// HTTP metrics
	HTTPErrorsTotal *prometheus.CounterVec

	// Rate limiter metrics
	RateLimiterDropped *prometheus.CounterVec

	// Webhook metrics
	WebhookRequestsTotal *prometheus.CounterVec

	// Ingestion metrics
	IngestedPointsTotal prometheus.Counter
	IndexSize           *prometheus.GaugeVec
}

// New creates a new Metrics instance with all metrics registered
func New(registry prometheus.Registerer) *Metrics {
	f := promauto.With(registry)
	return &Metrics{
		TurnsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_turns_total",
				Help: "Conversation turns by state at entry and outcome branch",
			},
			[]string{"state", "branch"}, // branch: chat, ask, roadmap, retrieval_error
		),
		TurnDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "advisor_turn_duration_seconds",
				Help:    "Turn processing duration by branch",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 20, 40, 90},
			},
			[]string{"branch"},
		),
		RoadmapsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_roadmaps_total",
				Help: "Roadmap renders by status",
			},
			[]string{"status"}, // status: success, fallback
		),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "advisor_active_sessions",
			Help: "Sessions currently held in memory",
		}),

		RetrievalDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "advisor_retrieval_duration_seconds",
			Help:    "Embedding plus vector search duration",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		RetrievalResults: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "advisor_retrieval_results",
			Help:    "Candidates returned per retrieval",
			Buckets: []float64{0, 1, 2, 4, 6, 8, 12, 20},
		}),
		RetrievalErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "advisor_retrieval_errors_total",
			Help: "Failed retrievals",
		}),

		EmbeddingRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_embedding_requests_total",
				Help: "Embedding API calls by provider and status",
			},
			[]string{"provider", "status"},
		),

		LLMTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_llm_requests_total",
				Help: "LLM calls by provider, operation and status",
			},
			[]string{"provider", "operation", "status"}, // operation: chat, roadmap
		),
		LLMDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "advisor_llm_duration_seconds",
				Help:    "Successful LLM call duration",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
			},
			[]string{"provider", "operation"},
		),
		LLMFallbackTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_llm_fallback_total",
				Help: "Provider fallbacks by from/to provider and operation",
			},
			[]string{"from", "to", "operation"},
		),
		LLMFallbackLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "advisor_llm_fallback_latency_seconds",
				Help:    "Time spent before a fallback provider succeeded",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40},
			},
			[]string{"operation"},
		),

		HTTPErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_http_errors_total",
				Help: "HTTP errors by type and route",
			},
			[]string{"error_type", "route"},
		),
		RateLimiterDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_rate_limiter_dropped_total",
				Help: "Requests dropped by rate limiter",
			},
			[]string{"limiter_type"}, // limiter_type: session, global
		),
		WebhookRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "advisor_webhook_requests_total",
				Help: "LINE webhook events by status",
			},
			[]string{"status"},
		),

		IngestedPointsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "advisor_ingested_points_total",
			Help: "Course points upserted by the ingestion pipeline",
		}),
		IndexSize: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "advisor_index_size",
				Help: "Documents per vector collection",
			},
			[]string{"collection"},
		),
	}
}

// RecordTurn records one completed conversational turn.
func (m *Metrics) RecordTurn(state, branch string, duration float64) {
	m.TurnsTotal.WithLabelValues(state, branch).Inc()
	m.TurnDurationSeconds.WithLabelValues(branch).Observe(duration)
}

// RecordRoadmap records a roadmap render outcome.
func (m *Metrics) RecordRoadmap(status string) {
	m.RoadmapsTotal.WithLabelValues(status).Inc()
}

// RecordRetrieval records a retrieval attempt.
func (m *Metrics) RecordRetrieval(duration float64, results int, err error) {
	m.RetrievalDurationSeconds.Observe(duration)
	if err != nil {
		m.RetrievalErrorsTotal.Inc()
		return
	}
	m.RetrievalResults.Observe(float64(results))
}

// SetActiveSessions sets the in-memory session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}

// RecordHTTPError records HTTP error metrics
func (m *Metrics) RecordHTTPError(errorType, route string) {
	m.HTTPErrorsTotal.WithLabelValues(errorType, route).Inc()
}

// RecordRateLimiterDrop records a request dropped by rate limiter
func (m *Metrics) RecordRateLimiterDrop(limiterType string) {
	m.RateLimiterDropped.WithLabelValues(limiterType).Inc()
}

// RecordWebhook records a LINE webhook event.
func (m *Metrics) RecordWebhook(status string) {
	m.WebhookRequestsTotal.WithLabelValues(status).Inc()
}

// RecordIngested adds upserted points.
func (m *Metrics) RecordIngested(n int) {
	m.IngestedPointsTotal.Add(float64(n))
}

// SetIndexSize records the document count of a collection.
func (m *Metrics) SetIndexSize(collection string, n int) {
	m.IndexSize.WithLabelValues(collection).Set(float64(n))
}
