package advisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/garyellow/edu-advisor/internal/errors"
	"github.com/garyellow/edu-advisor/internal/logger"
	"github.com/garyellow/edu-advisor/internal/storage"
)

// SessionStore is the persistence used by SessionManager.
type SessionStore interface {
	SaveSession(ctx context.Context, s *storage.Session, turns []storage.Turn) error
	GetSession(ctx context.Context, id string) (*storage.Session, error)
	GetTurns(ctx context.Context, sessionID string) ([]storage.Turn, error)
	DeleteSession(ctx context.Context, id string) (bool, error)
	DeleteIdleSessions(ctx context.Context, cutoff time.Time, keep ...string) (int64, error)
}

// channelNamespace derives stable session IDs for external chat IDs.
var channelNamespace = uuid.MustParse("6f1d3c2e-8a4b-4f5e-9c7d-2b1a0e9f8d7c")

// SessionManager owns the live sessions and, optionally, their persistence.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	loads    singleflight.Group

	store   SessionStore // nil keeps sessions in memory only
	idleTTL time.Duration
	logger  *logger.Logger
	now     func() time.Time
}

// NewSessionManager creates a manager. A nil store disables persistence;
// a zero idleTTL disables expiry.
func NewSessionManager(store SessionStore, idleTTL time.Duration, log *logger.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		store:    store,
		idleTTL:  idleTTL,
		logger:   log.WithModule("sessions"),
		now:      time.Now,
	}
}

// Create starts a new session with a random ID.
func (m *SessionManager) Create(ctx context.Context, channel string) (*Session, error) {
	s := NewSession(uuid.NewString(), channel, m.now())
	if err := m.Persist(ctx, s); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.WithSessionID(s.ID).DebugContext(ctx, "Session created", "channel", channel)
	return s, nil
}

// Get returns a live session, loading it from the store if needed.
func (m *SessionManager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	if m.store == nil {
		return nil, fmt.Errorf("session %s: %w", id, apperrors.ErrNotFound)
	}

	// Concurrent misses for one ID share a single store read.
	v, err, _ := m.loads.Do(id, func() (any, error) {
		s, err := m.load(ctx, id)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if existing, ok := m.sessions[id]; ok {
			return existing, nil
		}
		m.sessions[id] = s
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// GetOrCreateForChat returns the session bound to an external chat ID,
// creating it on first contact. The session ID is derived from channel and chatID.
func (m *SessionManager) GetOrCreateForChat(ctx context.Context, channel, chatID string) (*Session, error) {
	id := ChatSessionID(channel, chatID)

	s, err := m.Get(ctx, id)
	if err == nil {
		return s, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}

	s = NewSession(id, channel, m.now())
	if err := m.Persist(ctx, s); err != nil {
		m.logger.WithError(err).WarnContext(ctx, "Failed to persist new chat session")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[id]; ok {
		return existing, nil
	}
	m.sessions[id] = s
	return s, nil
}

// ChatSessionID derives the session ID for an external chat.
func ChatSessionID(channel, chatID string) string {
	return uuid.NewSHA1(channelNamespace, []byte(channel+":"+chatID)).String()
}

// Close ends a session. Further turns on it fail with ErrSessionClosed.
func (m *SessionManager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, live := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if live {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	}

	var stored bool
	if m.store != nil {
		var err error
		stored, err = m.store.DeleteSession(ctx, id)
		if err != nil {
			return err
		}
	}

	if !live && !stored {
		return fmt.Errorf("session %s: %w", id, apperrors.ErrNotFound)
	}
	m.logger.WithSessionID(id).DebugContext(ctx, "Session closed")
	return nil
}

// Persist writes the session and any turns not yet stored.
// Callers other than the controller must not hold s.mu.
func (m *SessionManager) Persist(ctx context.Context, s *Session) error {
	if m.store == nil {
		return nil
	}

	rec := &storage.Session{
		ID:        s.ID,
		Channel:   s.Channel,
		State:     string(s.state),
		Profile:   s.profile.Map(),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.updatedAt,
	}

	pending := s.conversation[s.persisted:]
	turns := make([]storage.Turn, len(pending))
	for i, t := range pending {
		turns[i] = storage.Turn{
			Seq:       s.persisted + i,
			Role:      string(t.Role),
			Content:   t.Content,
			CreatedAt: t.CreatedAt,
		}
	}

	if err := m.store.SaveSession(ctx, rec, turns); err != nil {
		return fmt.Errorf("persist session %s: %w", s.ID, err)
	}
	s.persisted = len(s.conversation)
	return nil
}

// Sweep drops sessions idle longer than the TTL from memory and storage.
// Sessions in the middle of a turn are skipped.
func (m *SessionManager) Sweep(ctx context.Context) int {
	if m.idleTTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.Lock()
	var evicted int
	var busy []string
	for id, s := range m.sessions {
		if !s.mu.TryLock() {
			// Its stored row must survive so the turn's persist appends to it.
			busy = append(busy, id)
			continue
		}
		if s.updatedAt.Before(cutoff) {
			s.closed = true
			delete(m.sessions, id)
			evicted++
		}
		s.mu.Unlock()
	}
	m.mu.Unlock()

	if m.store != nil {
		if _, err := m.store.DeleteIdleSessions(ctx, cutoff, busy...); err != nil {
			m.logger.WithError(err).WarnContext(ctx, "Failed to delete idle sessions")
		}
	}

	if evicted > 0 {
		m.logger.InfoContext(ctx, "Idle sessions evicted", "count", evicted)
	}
	return evicted
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *SessionManager) load(ctx context.Context, id string) (*Session, error) {
	rec, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("session %s: %w", id, apperrors.ErrNotFound)
	}

	state, ok := ParseState(rec.State)
	if !ok {
		return nil, fmt.Errorf("session %s has unknown state %q", id, rec.State)
	}

	turns, err := m.store.GetTurns(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load turns for session %s: %w", id, err)
	}

	s := &Session{
		ID:        rec.ID,
		Channel:   rec.Channel,
		CreatedAt: rec.CreatedAt,
		state:     state,
		profile:   ProfileFromMap(rec.Profile),
		updatedAt: rec.UpdatedAt,
	}
	s.conversation = make([]Turn, len(turns))
	for i, t := range turns {
		s.conversation[i] = Turn{Role: Role(t.Role), Content: t.Content, CreatedAt: t.CreatedAt}
	}
	s.persisted = len(s.conversation)

	m.logger.WithSessionID(id).DebugContext(ctx, "Session restored", "turns", len(turns), "state", state)
	return s, nil
}
