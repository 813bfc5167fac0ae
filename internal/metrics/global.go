package metrics

import "github.com/prometheus/client_golang/prometheus"

// Package-level LLM collectors used by internal/genai.
// They stay nil until InitGlobal is called; callers must nil-check.
var (
	LLMTotal           *prometheus.CounterVec
	LLMDuration        *prometheus.HistogramVec
	LLMFallbackTotal   *prometheus.CounterVec
	LLMFallbackLatency *prometheus.HistogramVec
	EmbeddingTotal     *prometheus.CounterVec
)

// InitGlobal publishes the LLM collectors of m for package-level use.
func InitGlobal(m *Metrics) {
	if m == nil {
		return
	}
	LLMTotal = m.LLMTotal
	LLMDuration = m.LLMDuration
	LLMFallbackTotal = m.LLMFallbackTotal
	LLMFallbackLatency = m.LLMFallbackLatency
	EmbeddingTotal = m.EmbeddingRequestsTotal
}
