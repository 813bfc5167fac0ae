package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/edu-advisor/internal/advisor"
	apperrors "github.com/garyellow/edu-advisor/internal/errors"
	"github.com/garyellow/edu-advisor/internal/genai"
	"github.com/garyellow/edu-advisor/internal/logger"
	"github.com/garyellow/edu-advisor/internal/ratelimit"
	"github.com/garyellow/edu-advisor/internal/retrieval"
	"github.com/garyellow/edu-advisor/internal/storage"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type stubRetriever struct{ err error }

func (r stubRetriever) Retrieve(context.Context, string, int) ([]retrieval.Candidate, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []retrieval.Candidate{{ID: "1", Payload: map[string]any{"title": "Go"}}}, nil
}

type stubRoadmap struct{}

func (stubRoadmap) Generate(context.Context, advisor.Profile, []retrieval.Candidate) string {
	return "your roadmap"
}

// stubChat waits for block to close, or for the context to end, when block is set.
type stubChat struct {
	mu    sync.Mutex
	calls int
	block chan struct{}
}

func (c *stubChat) Complete(ctx context.Context, _ genai.Request) (string, error) {
	c.mu.Lock()
	c.calls++
	block := c.block
	c.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "hi there", nil
}

type testServer struct {
	router   *gin.Engine
	sessions *advisor.SessionManager
	chat     *stubChat
	db       *storage.DB
}

type serverOptions struct {
	limiter     *ratelimit.KeyedLimiter
	turnTimeout time.Duration
	maxChars    int
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()

	db, err := storage.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logger.New("error")
	sessions := advisor.NewSessionManager(db, time.Hour, log)
	chat := &stubChat{}
	ctrl := advisor.NewController(stubRetriever{}, stubRoadmap{}, chat, 6, log, advisor.WithPersister(sessions))

	router := gin.New()
	NewHandler(Config{
		Sessions:    sessions,
		Controller:  ctrl,
		Limiter:     opts.limiter,
		Logger:      log,
		TurnTimeout: opts.turnTimeout,
		MaxChars:    opts.maxChars,
	}).Register(router)

	return &testServer{router: router, sessions: sessions, chat: chat, db: db}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) create(t *testing.T) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code)

	var snap advisor.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.NotEmpty(t, snap.ID)
	return snap.ID
}

func messageBody(text string) string {
	b, _ := json.Marshal(map[string]string{"message": text})
	return string(b)
}

func TestCreateAndGetSession(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, serverOptions{})

	id := srv.create(t)

	w := srv.do(t, http.MethodGet, "/api/v1/sessions/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)

	var snap advisor.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, id, snap.ID)
	assert.Equal(t, Channel, snap.Channel)
	assert.Equal(t, advisor.StateFreeChat, snap.State)
	assert.Empty(t, snap.Conversation)
	assert.Contains(t, w.Body.String(), `"conversation":[]`)
}

func TestGetSession_NotFound(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, serverOptions{})

	w := srv.do(t, http.MethodGet, "/api/v1/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"session not found"}`, w.Body.String())
}

func TestPostMessage_Conversation(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, serverOptions{})
	id := srv.create(t)
	path := "/api/v1/sessions/" + id + "/messages"

	w := srv.do(t, http.MethodPost, path, messageBody("hello"))
	require.Equal(t, http.StatusOK, w.Code)
	var resp messageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.SessionID)
	assert.Equal(t, "hi there", resp.Reply.Text)
	assert.Equal(t, advisor.BranchChat, resp.Reply.Branch)
	assert.Equal(t, advisor.StateFreeChat, resp.Reply.State)

	w = srv.do(t, http.MethodPost, path, messageBody("recommend courses for python, 5 hours a week, intermediate, text-based"))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, advisor.StateCollecting, resp.Reply.State)
	assert.Equal(t, []advisor.Slot{advisor.SlotField}, resp.Reply.Missing)

	w = srv.do(t, http.MethodPost, path, messageBody("web development"))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, advisor.StateRoadmapDone, resp.Reply.State)
	assert.Equal(t, "your roadmap", resp.Reply.Text)

	w = srv.do(t, http.MethodGet, "/api/v1/sessions/"+id, "")
	var snap advisor.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Len(t, snap.Conversation, 6)
	assert.Equal(t, "web development", snap.Profile.FieldOfInterest)

	turns, err := srv.db.GetTurns(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, turns, 6)
}

func TestPostMessage_Validation(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, serverOptions{maxChars: 10})
	id := srv.create(t)
	path := "/api/v1/sessions/" + id + "/messages"

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"not json", path, "hello", http.StatusBadRequest},
		{"empty", path, messageBody(""), http.StatusBadRequest},
		{"whitespace", path, messageBody("  \n "), http.StatusBadRequest},
		{"too long", path, messageBody(strings.Repeat("a", 11)), http.StatusRequestEntityTooLarge},
		{"unknown session", "/api/v1/sessions/nope/messages", messageBody("hi"), http.StatusNotFound},
	}

	for _, tt := range tests {
		w := srv.do(t, http.MethodPost, tt.path, tt.body)
		assert.Equal(t, tt.want, w.Code, tt.name)
	}

	// Rejected messages leave the conversation untouched.
	s, err := srv.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, s.Snapshot().Conversation)

	w := srv.do(t, http.MethodPost, path, messageBody("héllo wörld"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	w = srv.do(t, http.MethodPost, path, messageBody("héllo"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPostMessage_RateLimited(t *testing.T) {
	t.Parallel()
	limiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{Name: "session", Burst: 2, RefillRate: 0.1})
	defer limiter.Stop()
	srv := newTestServer(t, serverOptions{limiter: limiter})

	id := srv.create(t)
	other := srv.create(t)
	path := "/api/v1/sessions/" + id + "/messages"

	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, path, messageBody("one")).Code)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, path, messageBody("two")).Code)

	w := srv.do(t, http.MethodPost, path, messageBody("three"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// Other sessions have their own bucket.
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/api/v1/sessions/"+other+"/messages", messageBody("one")).Code)

	s, err := srv.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, s.Snapshot().Conversation, 4)
}

func TestPostMessage_TurnTimeoutStillAnswers(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, serverOptions{turnTimeout: 50 * time.Millisecond})
	srv.chat.block = make(chan struct{})
	id := srv.create(t)

	w := srv.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", messageBody("hello"))
	require.Equal(t, http.StatusOK, w.Code)

	var resp messageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, advisor.FreeChatApology, resp.Reply.Text)
}

func TestCloseSession(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, serverOptions{})
	id := srv.create(t)

	w := srv.do(t, http.MethodDelete, "/api/v1/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/api/v1/sessions/"+id, "").Code)
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", messageBody("hi")).Code)
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodDelete, "/api/v1/sessions/"+id, "").Code)
}

func TestPostMessage_ClosedWhileHeld(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, serverOptions{})
	id := srv.create(t)

	s, err := srv.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, srv.sessions.Close(context.Background(), id))

	// A caller still holding the session cannot add turns to it.
	_, err = advisor.NewController(stubRetriever{err: errors.New("unused")}, stubRoadmap{}, srv.chat, 6, logger.New("error")).
		HandleTurn(context.Background(), s, "hi")
	assert.ErrorIs(t, err, apperrors.ErrSessionClosed)
}
