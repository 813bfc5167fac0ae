package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersCollectors(t *testing.T) {
	t.Parallel()
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.RecordTurn("collecting", "ask", 0.02)
	m.RecordRoadmap("success")
	m.RecordRetrieval(0.1, 6, nil)
	m.SetActiveSessions(3)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"advisor_turns_total",
		"advisor_turn_duration_seconds",
		"advisor_roadmaps_total",
		"advisor_retrieval_results",
		"advisor_active_sessions",
	} {
		if !names[want] {
			t.Errorf("metric %s not gathered", want)
		}
	}
}

func TestRecordTurn(t *testing.T) {
	t.Parallel()
	m := New(prometheus.NewRegistry())

	m.RecordTurn("free_chat", "chat", 0.5)
	m.RecordTurn("free_chat", "chat", 0.7)
	m.RecordTurn("collecting", "roadmap", 3)

	if got := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("free_chat", "chat")); got != 2 {
		t.Errorf("free_chat/chat = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("collecting", "roadmap")); got != 1 {
		t.Errorf("collecting/roadmap = %v, want 1", got)
	}
}

func TestRecordRetrieval_Error(t *testing.T) {
	t.Parallel()
	m := New(prometheus.NewRegistry())

	m.RecordRetrieval(0.2, 0, errors.New("index unavailable"))
	m.RecordRetrieval(0.2, 4, nil)

	if got := testutil.ToFloat64(m.RetrievalErrorsTotal); got != 1 {
		t.Errorf("retrieval errors = %v, want 1", got)
	}
}

func TestGauges(t *testing.T) {
	t.Parallel()
	m := New(prometheus.NewRegistry())

	m.SetActiveSessions(5)
	m.SetIndexSize("courses_collection", 1200)
	m.RecordIngested(256)
	m.RecordIngested(10)

	if got := testutil.ToFloat64(m.ActiveSessions); got != 5 {
		t.Errorf("active sessions = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.IndexSize.WithLabelValues("courses_collection")); got != 1200 {
		t.Errorf("index size = %v, want 1200", got)
	}
	if got := testutil.ToFloat64(m.IngestedPointsTotal); got != 266 {
		t.Errorf("ingested = %v, want 266", got)
	}
}

func TestInitGlobal(t *testing.T) {
	m := New(prometheus.NewRegistry())
	InitGlobal(nil)
	InitGlobal(m)
	if LLMTotal != m.LLMTotal || EmbeddingTotal != m.EmbeddingRequestsTotal {
		t.Error("InitGlobal() did not publish collectors")
	}
}
