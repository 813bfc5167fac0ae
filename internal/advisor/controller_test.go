package advisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/garyellow/edu-advisor/internal/errors"
	"github.com/garyellow/edu-advisor/internal/genai"
	"github.com/garyellow/edu-advisor/internal/logger"
	"github.com/garyellow/edu-advisor/internal/metrics"
	"github.com/garyellow/edu-advisor/internal/retrieval"
)

const fullProfileUtterance = "I want to learn machine learning with python, 10 hours/week, beginner, prefer video courses"

type fakeRetriever struct {
	mu      sync.Mutex
	results []retrieval.Candidate
	errs    []error // consumed one per call; nil entries succeed
	queries []string
	topKs   []int
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, topK int) ([]retrieval.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.topKs = append(f.topKs, topK)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.results, nil
}

func (f *fakeRetriever) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fakeRoadmap struct {
	mu         sync.Mutex
	profiles   []Profile
	candidates [][]retrieval.Candidate
}

func (f *fakeRoadmap) Generate(_ context.Context, p Profile, c []retrieval.Candidate) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles = append(f.profiles, p)
	f.candidates = append(f.candidates, c)
	return "ROADMAP"
}

type fakeChat struct {
	mu    sync.Mutex
	reply string
	err   error
	reqs  []genai.Request
}

func (f *fakeChat) Complete(_ context.Context, req genai.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.reply, f.err
}

type countingPersister struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *countingPersister) Persist(context.Context, *Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

type harness struct {
	retriever *fakeRetriever
	roadmap   *fakeRoadmap
	chat      *fakeChat
	ctrl      *Controller
}

func newHarness(opts ...Option) *harness {
	h := &harness{
		retriever: &fakeRetriever{results: []retrieval.Candidate{{ID: "1"}, {ID: "2"}}},
		roadmap:   &fakeRoadmap{},
		chat:      &fakeChat{reply: "chat reply"},
	}
	h.ctrl = NewController(h.retriever, h.roadmap, h.chat, 6, logger.New("error"), opts...)
	return h
}

func newTestSession() *Session {
	return NewSession("s-1", "test", time.Now())
}

func turn(t *testing.T, h *harness, s *Session, text string) Reply {
	t.Helper()
	r, err := h.ctrl.HandleTurn(context.Background(), s, text)
	require.NoError(t, err)
	return r
}

func TestHandleTurn_FreeChatStaysFreeChat(t *testing.T) {
	t.Parallel()
	h := newHarness()
	s := newTestSession()

	r := turn(t, h, s, "hello there")

	assert.Equal(t, StateFreeChat, r.State)
	assert.Equal(t, BranchChat, r.Branch)
	assert.Equal(t, "chat reply", r.Text)
	assert.Zero(t, h.retriever.calls())

	snap := s.Snapshot()
	require.Len(t, snap.Conversation, 2)
	assert.Equal(t, RoleUser, snap.Conversation[0].Role)
	assert.Equal(t, RoleAssistant, snap.Conversation[1].Role)
}

func TestHandleTurn_ChatGetsFullHistory(t *testing.T) {
	t.Parallel()
	h := newHarness()
	s := newTestSession()

	turn(t, h, s, "hi")
	turn(t, h, s, "how are you")

	require.Len(t, h.chat.reqs, 2)
	req := h.chat.reqs[1]
	assert.Equal(t, SystemPrompt, req.System)
	assert.Equal(t, "chat", req.Operation)
	assert.Equal(t, []genai.Message{
		{Role: genai.RoleUser, Content: "hi"},
		{Role: genai.RoleAssistant, Content: "chat reply"},
		{Role: genai.RoleUser, Content: "how are you"},
	}, req.Messages)
}

func TestHandleTurn_StampsTurnsWithClock(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	h := newHarness(WithClock(func() time.Time { return at }))
	s := newTestSession()

	turn(t, h, s, "hi")

	snap := s.Snapshot()
	require.Len(t, snap.Conversation, 2)
	for _, tr := range snap.Conversation {
		assert.Equal(t, at, tr.CreatedAt)
	}
	assert.Equal(t, at, snap.UpdatedAt)
}

func TestHandleTurn_FullProfileGoesStraightToRoadmap(t *testing.T) {
	t.Parallel()
	h := newHarness()
	s := newTestSession()

	r := turn(t, h, s, fullProfileUtterance)

	assert.Equal(t, StateRoadmapDone, r.State)
	assert.Equal(t, BranchRoadmap, r.Branch)
	assert.Equal(t, "ROADMAP", r.Text)

	require.Equal(t, 1, h.retriever.calls())
	assert.Equal(t, "machine learning machine learning, python", h.retriever.queries[0])
	assert.Equal(t, 6, h.retriever.topKs[0])

	require.Len(t, h.roadmap.candidates, 1)
	assert.Equal(t, h.retriever.results, h.roadmap.candidates[0])
	assert.Len(t, s.Snapshot().Conversation, 2)
	assert.Nil(t, s.lastCandidates, "candidates are dropped after the render")
}

func TestHandleTurn_PythonScenarioAsksOnlyForField(t *testing.T) {
	t.Parallel()
	h := newHarness()
	s := newTestSession()

	r := turn(t, h, s, "recommend courses for python, 5 hours a week, intermediate, text-based")

	assert.Equal(t, StateCollecting, r.State)
	assert.Equal(t, BranchFollowUp, r.Branch)
	assert.Equal(t, []Slot{SlotField}, r.Missing)
	assert.Equal(t, ComposeFollowUp([]Slot{SlotField}), r.Text)
	assert.Zero(t, h.retriever.calls())
	assert.Empty(t, h.chat.reqs)
}

func TestHandleTurn_CollectingUntilComplete(t *testing.T) {
	t.Parallel()
	h := newHarness()
	s := newTestSession()

	r := turn(t, h, s, "teach me something")
	assert.Equal(t, StateCollecting, r.State)
	assert.Equal(t, RequiredSlots, r.Missing)

	steps := []struct {
		text    string
		missing []Slot
	}{
		{"cloud computing", []Slot{SlotSkills, SlotPreference, SlotLevel, SlotAvailability}},
		{"hello?", []Slot{SlotSkills, SlotPreference, SlotLevel, SlotAvailability}},
		{"pandas and sql", []Slot{SlotPreference, SlotLevel, SlotAvailability}},
		{"videos, advanced", []Slot{SlotAvailability}},
	}
	for _, step := range steps {
		r = turn(t, h, s, step.text)
		assert.Equal(t, StateCollecting, r.State, step.text)
		assert.Equal(t, step.missing, r.Missing, step.text)
	}
	assert.Zero(t, h.retriever.calls())

	r = turn(t, h, s, "6 hours")
	assert.Equal(t, StateRoadmapDone, r.State)
	assert.Equal(t, 1, h.retriever.calls())
	assert.Equal(t, "cloud computing pandas, sql", h.retriever.queries[0])

	// Terminal: further messages are free chat and the profile is frozen.
	r = turn(t, h, s, "actually I am a beginner, recommend courses")
	assert.Equal(t, StateRoadmapDone, r.State)
	assert.Equal(t, BranchChat, r.Branch)
	assert.Equal(t, 1, h.retriever.calls())
	assert.Equal(t, "advanced", s.Snapshot().Profile.Level)

	assert.Len(t, s.Snapshot().Conversation, 2*7)
}

func TestHandleTurn_RetrievalErrorKeepsCollecting(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.retriever.errs = []error{errors.New("index unavailable"), nil}
	s := newTestSession()

	r := turn(t, h, s, fullProfileUtterance)
	assert.Equal(t, StateCollecting, r.State)
	assert.Equal(t, BranchRetrievalError, r.Branch)
	assert.Equal(t, RetrievalApology, r.Text)
	assert.Empty(t, h.roadmap.profiles)
	assert.True(t, s.Snapshot().Profile.Complete())

	// The next message retries with the stored profile.
	r = turn(t, h, s, "please try again")
	assert.Equal(t, StateRoadmapDone, r.State)
	assert.Equal(t, BranchRoadmap, r.Branch)
	assert.Equal(t, 2, h.retriever.calls())
	assert.Len(t, s.Snapshot().Conversation, 4)
}

func TestHandleTurn_ChatErrorsBecomeApologies(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.chat.err = errors.New("all chat models failed")
	s := newTestSession()

	r := turn(t, h, s, "hello")
	assert.Equal(t, FreeChatApology, r.Text)
	assert.Equal(t, StateFreeChat, r.State)

	turn(t, h, s, fullProfileUtterance)
	r = turn(t, h, s, "thanks")
	assert.Equal(t, PostRoadmapApology, r.Text)
	assert.Equal(t, StateRoadmapDone, r.State)

	h.chat.err = nil
	h.chat.reply = "  "
	r = turn(t, h, s, "still there?")
	assert.Equal(t, PostRoadmapApology, r.Text)
}

func TestHandleTurn_RejectsBeforeMutation(t *testing.T) {
	t.Parallel()
	h := newHarness()
	s := newTestSession()

	_, err := h.ctrl.HandleTurn(context.Background(), s, "   ")
	assert.ErrorIs(t, err, apperrors.ErrEmptyMessage)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.ctrl.HandleTurn(ctx, s, "hello")
	assert.ErrorIs(t, err, context.Canceled)

	s.closed = true
	_, err = h.ctrl.HandleTurn(context.Background(), s, "hello")
	assert.ErrorIs(t, err, apperrors.ErrSessionClosed)

	assert.Empty(t, s.Snapshot().Conversation)
}

func TestHandleTurn_PersistsEveryTurn(t *testing.T) {
	t.Parallel()
	p := &countingPersister{err: errors.New("disk full")}
	h := newHarness(WithPersister(p))
	s := newTestSession()

	turn(t, h, s, "hello")
	r := turn(t, h, s, "teach me java")

	assert.Equal(t, 2, p.calls)
	assert.Equal(t, StateCollecting, r.State, "persistence failures do not affect the reply")
}

func TestHandleTurn_RecordsMetrics(t *testing.T) {
	t.Parallel()
	m := metrics.New(prometheus.NewRegistry())
	h := newHarness(WithMetrics(m))
	s := newTestSession()

	turn(t, h, s, fullProfileUtterance)

	assert.InDelta(t, 1, testutil.ToFloat64(m.TurnsTotal.WithLabelValues(string(StateFreeChat), string(BranchRoadmap))), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RoadmapsTotal.WithLabelValues("rendered")), 0)
}

func TestHandleTurn_ConcurrentTurnsAreAtomic(t *testing.T) {
	t.Parallel()
	h := newHarness()
	s := newTestSession()

	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			_, err := h.ctrl.HandleTurn(context.Background(), s, fmt.Sprintf("message %d", i))
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	conv := s.Snapshot().Conversation
	require.Len(t, conv, 2*n)
	for i, tr := range conv {
		want := RoleUser
		if i%2 == 1 {
			want = RoleAssistant
		}
		assert.Equal(t, want, tr.Role, "turn %d", i)
	}
}

func TestHandleTurn_SessionsAreIsolated(t *testing.T) {
	t.Parallel()
	h := newHarness()
	a := NewSession("a", "test", time.Now())
	b := NewSession("b", "test", time.Now())

	turn(t, h, a, "teach me java")
	turn(t, h, b, "hello")

	assert.Equal(t, StateCollecting, a.State())
	assert.Equal(t, StateFreeChat, b.State())
	assert.Equal(t, "java", a.Snapshot().Profile.FieldOfInterest)
	assert.Empty(t, b.Snapshot().Profile.FieldOfInterest)
}
