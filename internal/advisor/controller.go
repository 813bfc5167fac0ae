// Package advisor implements the course-advising conversation: intent
// detection, profile slot filling, and the hand-off to retrieval and roadmap
// generation.
package advisor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/garyellow/edu-advisor/internal/ctxutil"
	apperrors "github.com/garyellow/edu-advisor/internal/errors"
	"github.com/garyellow/edu-advisor/internal/genai"
	"github.com/garyellow/edu-advisor/internal/logger"
	"github.com/garyellow/edu-advisor/internal/metrics"
	"github.com/garyellow/edu-advisor/internal/retrieval"
	"github.com/garyellow/edu-advisor/internal/sentry"
)

// SystemPrompt is sent with every chat completion.
const SystemPrompt = "You are an expert education advisor."

// Fixed replies for caught collaborator failures.
const (
	FreeChatApology    = "Sorry, something went wrong while chatting."
	PostRoadmapApology = "Sorry, I couldn't continue the conversation due to an internal error."
	RetrievalApology   = "Sorry, I couldn't look up courses right now. Send another message and I'll try again."
)

const persistTimeout = 5 * time.Second

var errEmptyCompletion = errors.New("empty completion")

// Branch labels how a turn was answered.
type Branch string

const (
	BranchChat           Branch = "chat"
	BranchFollowUp       Branch = "follow_up"
	BranchRoadmap        Branch = "roadmap"
	BranchRetrievalError Branch = "retrieval_error"
)

// Reply is the assistant's answer to one turn.
type Reply struct {
	Text    string `json:"text"`
	State   State  `json:"state"`
	Branch  Branch `json:"branch"`
	Missing []Slot `json:"missing,omitempty"`
}

// CourseRetriever fetches candidate courses for a query.
type CourseRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.Candidate, error)
}

// RoadmapGenerator renders a roadmap. It never fails; errors become a fixed message.
type RoadmapGenerator interface {
	Generate(ctx context.Context, profile Profile, candidates []retrieval.Candidate) string
}

// ChatCompleter produces a free-chat reply.
type ChatCompleter interface {
	Complete(ctx context.Context, req genai.Request) (string, error)
}

// Persister saves a session after each turn. It is called with the session lock held.
type Persister interface {
	Persist(ctx context.Context, s *Session) error
}

// Controller runs the per-turn state machine.
type Controller struct {
	retriever CourseRetriever
	roadmap   RoadmapGenerator
	chat      ChatCompleter
	topK      int
	logger    *logger.Logger

	persister Persister
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithPersister saves sessions after every turn.
func WithPersister(p Persister) Option {
	return func(c *Controller) { c.persister = p }
}

// WithMetrics records turn, retrieval and roadmap metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock overrides time.Now for turn timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates a Controller. topK is the retrieval size for roadmaps.
func NewController(retriever CourseRetriever, roadmap RoadmapGenerator, chat ChatCompleter, topK int, log *logger.Logger, opts ...Option) *Controller {
	c := &Controller{
		retriever: retriever,
		roadmap:   roadmap,
		chat:      chat,
		topK:      max(topK, 1),
		logger:    log.WithModule("advisor"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleTurn processes one user message and appends exactly one assistant turn.
// Collaborator failures are answered with an apology rather than returned;
// errors are returned only when the message is rejected before any change.
func (c *Controller) HandleTurn(ctx context.Context, s *Session, text string) (Reply, error) {
	if strings.TrimSpace(text) == "" {
		return Reply{}, apperrors.ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Reply{}, apperrors.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}

	ctx = ctxutil.WithSessionID(ctx, s.ID)
	start := time.Now()
	entryState := s.state

	s.append(RoleUser, text, c.now())

	var reply Reply
	switch s.state {
	case StateRoadmapDone:
		reply = c.chatReply(ctx, s, PostRoadmapApology)
	case StateCollecting:
		reply = c.collect(ctx, s, text)
	default:
		if DetectIntent(text) {
			s.state = StateCollecting
			reply = c.collect(ctx, s, text)
		} else {
			reply = c.chatReply(ctx, s, FreeChatApology)
		}
	}

	s.append(RoleAssistant, reply.Text, c.now())
	reply.State = s.state

	c.persist(ctx, s)
	if c.metrics != nil {
		c.metrics.RecordTurn(string(entryState), string(reply.Branch), time.Since(start).Seconds())
	}

	c.logger.DebugContext(ctx, "Turn handled",
		"from_state", entryState,
		"to_state", s.state,
		"branch", reply.Branch)
	return reply, nil
}

// collect merges the utterance into the profile, then either asks for the
// missing slots or retrieves courses and renders the roadmap.
func (c *Controller) collect(ctx context.Context, s *Session, text string) Reply {
	s.profile.Merge(Extract(text))

	if missing := s.profile.Missing(); len(missing) > 0 {
		return Reply{Text: ComposeFollowUp(missing), Branch: BranchFollowUp, Missing: missing}
	}

	start := time.Now()
	candidates, err := c.retriever.Retrieve(ctx, s.profile.Query(), c.topK)
	if c.metrics != nil {
		c.metrics.RecordRetrieval(time.Since(start).Seconds(), len(candidates), err)
	}
	if err != nil {
		// The profile stays complete, so the next message retries retrieval.
		c.logger.WithError(err).ErrorContext(ctx, "Course retrieval failed",
			"query", s.profile.Query())
		sentry.CaptureExceptionWithContext(ctx, err)
		if c.metrics != nil {
			c.metrics.RecordRoadmap("retrieval_error")
		}
		return Reply{Text: RetrievalApology, Branch: BranchRetrievalError}
	}

	s.lastCandidates = candidates
	text = c.roadmap.Generate(ctx, s.profile, s.lastCandidates)
	s.lastCandidates = nil
	s.state = StateRoadmapDone

	if c.metrics != nil {
		c.metrics.RecordRoadmap("rendered")
	}
	c.logger.InfoContext(ctx, "Roadmap generated", "candidates", len(candidates))
	return Reply{Text: text, Branch: BranchRoadmap}
}

// chatReply sends the full conversation to the chat model.
func (c *Controller) chatReply(ctx context.Context, s *Session, apology string) Reply {
	req := genai.Request{
		System:    SystemPrompt,
		Messages:  toMessages(s.conversation),
		Operation: "chat",
	}

	out, err := c.chat.Complete(ctx, req)
	if err == nil && strings.TrimSpace(out) == "" {
		err = errEmptyCompletion
	}
	if err != nil {
		c.logger.WithError(err).ErrorContext(ctx, "Chat completion failed", "state", s.state)
		sentry.CaptureExceptionWithContext(ctx, err)
		return Reply{Text: apology, Branch: BranchChat}
	}
	return Reply{Text: out, Branch: BranchChat}
}

func (c *Controller) persist(ctx context.Context, s *Session) {
	if c.persister == nil {
		return
	}
	// The turn already happened; save it even if the caller has gone away.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := c.persister.Persist(pctx, s); err != nil {
		c.logger.WithError(err).WarnContext(ctx, "Failed to persist session")
	}
}

func toMessages(turns []Turn) []genai.Message {
	msgs := make([]genai.Message, len(turns))
	for i, t := range turns {
		role := genai.RoleUser
		if t.Role == RoleAssistant {
			role = genai.RoleAssistant
		}
		msgs[i] = genai.Message{Role: role, Content: t.Content}
	}
	return msgs
}
