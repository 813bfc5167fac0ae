// Package webhook connects the LINE Messaging API to the advisor: every LINE
// chat is one advisor session, and each text message is one turn.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/garyellow/edu-advisor/internal/advisor"
	"github.com/garyellow/edu-advisor/internal/ctxutil"
	apperrors "github.com/garyellow/edu-advisor/internal/errors"
	"github.com/garyellow/edu-advisor/internal/logger"
	"github.com/garyellow/edu-advisor/internal/metrics"
	"github.com/garyellow/edu-advisor/internal/ratelimit"
	"github.com/garyellow/edu-advisor/internal/sentry"
)

// Channel labels sessions that belong to LINE chats.
const Channel = "line"

// LINE Messaging API limits.
const (
	maxTextRunes        = 5000
	maxMessagesPerReply = 5
	maxEventsPerWebhook = 100
)

const (
	welcomeText     = "Hi! I'm your education advisor. Tell me what you'd like to learn and I'll put together a course roadmap for you."
	unsupportedText = "I can only read text messages for now."
	errorText       = "Sorry, something went wrong. Please try again in a moment."
)

// Replier sends reply messages. *messaging_api.MessagingApiAPI satisfies it.
type Replier interface {
	ReplyMessage(req *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error)
}

// SessionSource resolves the advisor session of a chat.
type SessionSource interface {
	GetOrCreateForChat(ctx context.Context, channel, chatID string) (*advisor.Session, error)
}

// TurnHandler answers one message in a session.
type TurnHandler interface {
	HandleTurn(ctx context.Context, s *advisor.Session, text string) (advisor.Reply, error)
}

// HandlerConfig holds the dependencies of a Handler.
type HandlerConfig struct {
	ChannelSecret string
	ChannelToken  string
	// Client overrides the Messaging API client built from ChannelToken.
	Client Replier

	Sessions    SessionSource
	Controller  TurnHandler
	TurnTimeout time.Duration
	// GlobalRPS caps outgoing replies per second across all chats.
	GlobalRPS float64

	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

// Handler receives LINE webhooks and replies asynchronously.
type Handler struct {
	channelSecret string
	client        Replier
	sessions      SessionSource
	controller    TurnHandler
	turnTimeout   time.Duration
	limiter       *ratelimit.Limiter
	metrics       *metrics.Metrics
	logger        *logger.Logger
	wg            sync.WaitGroup

	// queues holds the pending events of each chat that has a worker running.
	queuesMu sync.Mutex
	queues   map[string][]webhook.EventInterface
}

// NewHandler creates a webhook handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.ChannelSecret == "" {
		return nil, errors.New("channel secret is required")
	}

	client := cfg.Client
	if client == nil {
		api, err := messaging_api.NewMessagingApiAPI(cfg.ChannelToken)
		if err != nil {
			return nil, fmt.Errorf("create messaging API client: %w", err)
		}
		client = api
	}

	rps := cfg.GlobalRPS
	if rps <= 0 {
		rps = 100
	}

	return &Handler{
		channelSecret: cfg.ChannelSecret,
		client:        client,
		sessions:      cfg.Sessions,
		controller:    cfg.Controller,
		turnTimeout:   cfg.TurnTimeout,
		limiter:       ratelimit.NewPerSecond(rps),
		metrics:       cfg.Metrics,
		logger:        cfg.Logger.WithModule("webhook"),
		queues:        make(map[string][]webhook.EventInterface),
	}, nil
}

// Handle is the gin handler for POST /webhook. It acknowledges the request
// at once, as LINE requires, and processes the events in the background.
func (h *Handler) Handle(c *gin.Context) {
	cb, err := webhook.ParseRequest(h.channelSecret, c.Request)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			h.logger.Warn("Invalid webhook signature")
			h.record("invalid_signature")
			c.Status(http.StatusBadRequest)
		} else {
			h.logger.WithError(err).Error("Failed to parse webhook request")
			h.record("parse_error")
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	c.Status(http.StatusOK)

	events := cb.Events
	if len(events) > maxEventsPerWebhook {
		h.logger.WithField("event_count", len(events)).Warn("Too many events in webhook batch; truncating")
		events = events[:maxEventsPerWebhook]
	}
	for _, event := range events {
		h.enqueue(event)
	}
}

// enqueue appends event to its chat's queue, starting a worker when the
// chat has none. Events of one chat are processed one at a time, in the
// order they arrived.
func (h *Handler) enqueue(event webhook.EventInterface) {
	key := eventChatID(event)

	h.queuesMu.Lock()
	pending, running := h.queues[key]
	h.queues[key] = append(pending, event)
	h.queuesMu.Unlock()

	if !running {
		h.wg.Go(func() { h.drain(key) })
	}
}

func (h *Handler) drain(key string) {
	for {
		h.queuesMu.Lock()
		pending := h.queues[key]
		if len(pending) == 0 {
			delete(h.queues, key)
			h.queuesMu.Unlock()
			return
		}
		event := pending[0]
		h.queues[key] = pending[1:]
		h.queuesMu.Unlock()

		h.processSafely(event)
	}
}

func (h *Handler) processSafely(event webhook.EventInterface) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.WithField("panic", r).Error("Panic in webhook event processing")
		}
	}()
	h.processEvent(context.Background(), event)
}

func (h *Handler) processEvent(ctx context.Context, event webhook.EventInterface) {
	switch e := event.(type) {
	case webhook.MessageEvent:
		ctx = withEventContext(ctx, e.WebhookEventId)
		h.handleMessage(ctx, e)
	case webhook.FollowEvent:
		ctx = withEventContext(ctx, e.WebhookEventId)
		h.reply(ctx, e.ReplyToken, []string{welcomeText})
		h.record("follow")
	default:
		h.logger.WithField("event_type", fmt.Sprintf("%T", e)).Debug("Unsupported event type")
		h.record("ignored")
	}
}

func (h *Handler) handleMessage(ctx context.Context, e webhook.MessageEvent) {
	chatID := chatIDOf(e.Source)
	if chatID == "" {
		h.record("ignored")
		return
	}
	_, personal := e.Source.(webhook.UserSource)

	msg, ok := e.Message.(webhook.TextMessageContent)
	if !ok {
		if personal {
			h.reply(ctx, e.ReplyToken, []string{unsupportedText})
		}
		h.record("unsupported")
		return
	}

	text := msg.Text
	if !personal {
		// Group chats only talk to the bot through a mention.
		if !isBotMentioned(msg) {
			h.record("ignored")
			return
		}
		text = stripBotMentions(text, msg.Mention)
	}

	reply, err := h.turn(ctx, chatID, text)
	switch {
	case errors.Is(err, apperrors.ErrEmptyMessage):
		h.record("ignored")
		return
	case err != nil:
		h.logger.WithError(err).ErrorContext(ctx, "Failed to handle LINE message")
		sentry.CaptureExceptionWithContext(ctx, err)
		h.reply(ctx, e.ReplyToken, []string{errorText})
		h.record("error")
		return
	}

	h.reply(ctx, e.ReplyToken, splitText(reply.Text, maxTextRunes))
	h.record("success")
}

func (h *Handler) turn(ctx context.Context, chatID, text string) (advisor.Reply, error) {
	if strings.TrimSpace(text) == "" {
		return advisor.Reply{}, apperrors.ErrEmptyMessage
	}

	s, err := h.sessions.GetOrCreateForChat(ctx, Channel, chatID)
	if err != nil {
		return advisor.Reply{}, fmt.Errorf("session for chat: %w", err)
	}

	if h.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.turnTimeout)
		defer cancel()
	}
	return h.controller.HandleTurn(ctx, s, text)
}

// reply sends up to maxMessagesPerReply text messages, waiting for the
// global limiter first.
func (h *Handler) reply(ctx context.Context, token string, texts []string) {
	if token == "" || len(texts) == 0 {
		return
	}

	if !h.limiter.Allow() {
		if h.metrics != nil {
			h.metrics.RecordRateLimiterDrop("line_reply")
		}
		for !h.limiter.Allow() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(max(h.limiter.RetryAfter(), 10*time.Millisecond)):
			}
		}
	}

	texts = capMessages(texts, maxMessagesPerReply, maxTextRunes)
	messages := make([]messaging_api.MessageInterface, len(texts))
	for i, t := range texts {
		messages[i] = &messaging_api.TextMessage{Text: t}
	}

	_, err := h.client.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: token,
		Messages:   messages,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Invalid reply token") {
			h.logger.WithError(err).DebugContext(ctx, "Reply token already used or expired")
		} else {
			h.logger.WithError(err).ErrorContext(ctx, "Failed to send LINE reply")
		}
		h.record("reply_error")
	}
}

func (h *Handler) record(status string) {
	if h.metrics != nil {
		h.metrics.RecordWebhook(status)
	}
}

// Shutdown waits for in-flight events, or for ctx to end.
func (h *Handler) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func withEventContext(ctx context.Context, eventID string) context.Context {
	ctx = ctxutil.WithChannel(ctx, Channel)
	if eventID != "" {
		ctx = ctxutil.WithRequestID(ctx, eventID)
	}
	return ctx
}

// chatIDOf returns the conversation a message belongs to: the user for
// one-on-one chats, otherwise the group or room.
// eventChatID returns the chat an event belongs to, or "" when it has none.
func eventChatID(event webhook.EventInterface) string {
	switch e := event.(type) {
	case webhook.MessageEvent:
		return chatIDOf(e.Source)
	case webhook.FollowEvent:
		return chatIDOf(e.Source)
	}
	return ""
}

func chatIDOf(source webhook.SourceInterface) string {
	switch s := source.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.GroupId
	case webhook.RoomSource:
		return s.RoomId
	}
	return ""
}
