package advisor

import (
	"slices"
	"sync"
	"time"

	"github.com/garyellow/edu-advisor/internal/retrieval"
)

// State is the conversation phase of a session.
type State string

const (
	StateFreeChat    State = "FREE_CHAT"
	StateCollecting  State = "COLLECTING"
	StateRoadmapDone State = "ROADMAP_DONE"
)

// ParseState converts a stored state name. Unknown names yield false.
func ParseState(s string) (State, bool) {
	switch State(s) {
	case StateFreeChat, StateCollecting, StateRoadmapDone:
		return State(s), true
	}
	return "", false
}

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one conversation entry.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Session owns one learner's profile, conversation and state.
// Its mutable fields are guarded by mu, which the controller holds for a whole turn.
type Session struct {
	ID        string
	Channel   string
	CreatedAt time.Time

	mu           sync.Mutex
	state        State
	profile      Profile
	conversation []Turn
	updatedAt    time.Time
	closed       bool

	// lastCandidates holds the retrieval for the render in progress; cleared once it is rendered.
	lastCandidates []retrieval.Candidate
	// persisted counts turns already written to storage.
	persisted int
}

// NewSession creates an empty session in FREE_CHAT.
func NewSession(id, channel string, now time.Time) *Session {
	return &Session{
		ID:        id,
		Channel:   channel,
		CreatedAt: now,
		state:     StateFreeChat,
		updatedAt: now,
	}
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	ID           string    `json:"id"`
	Channel      string    `json:"channel,omitempty"`
	State        State     `json:"state"`
	Profile      Profile   `json:"profile"`
	Missing      []Slot    `json:"missing,omitempty"`
	Conversation []Turn    `json:"conversation"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Snapshot copies the session. It waits for an in-flight turn to finish.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:           s.ID,
		Channel:      s.Channel,
		State:        s.state,
		Profile:      s.profile,
		Conversation: slices.Clone(s.conversation),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.updatedAt,
	}
	if snap.Conversation == nil {
		snap.Conversation = []Turn{}
	}
	if s.state == StateCollecting {
		snap.Missing = s.profile.Missing()
	}
	return snap
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UpdatedAt returns the time of the last completed turn.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

func (s *Session) append(role Role, content string, now time.Time) {
	s.conversation = append(s.conversation, Turn{Role: role, Content: content, CreatedAt: now})
	s.updatedAt = now
}
