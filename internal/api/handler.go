// Package api exposes advisor sessions over a JSON HTTP API.
package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/garyellow/edu-advisor/internal/advisor"
	"github.com/garyellow/edu-advisor/internal/ctxutil"
	apperrors "github.com/garyellow/edu-advisor/internal/errors"
	"github.com/garyellow/edu-advisor/internal/logger"
	"github.com/garyellow/edu-advisor/internal/metrics"
	"github.com/garyellow/edu-advisor/internal/ratelimit"
)

// Channel labels sessions created through this API.
const Channel = "api"

// Config holds the dependencies of a Handler.
type Config struct {
	Sessions    *advisor.SessionManager
	Controller  *advisor.Controller
	Limiter     *ratelimit.KeyedLimiter // nil disables per-session limits
	Metrics     *metrics.Metrics
	Logger      *logger.Logger
	TurnTimeout time.Duration // 0 disables the deadline
	MaxChars    int           // 0 disables the length check
}

// Handler serves the session endpoints.
type Handler struct {
	sessions    *advisor.SessionManager
	controller  *advisor.Controller
	limiter     *ratelimit.KeyedLimiter
	metrics     *metrics.Metrics
	logger      *logger.Logger
	turnTimeout time.Duration
	maxChars    int
}

// NewHandler creates a Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		sessions:    cfg.Sessions,
		controller:  cfg.Controller,
		limiter:     cfg.Limiter,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger.WithModule("api"),
		turnTimeout: cfg.TurnTimeout,
		maxChars:    cfg.MaxChars,
	}
}

// Register mounts the endpoints under /api/v1.
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/api/v1")
	v1.POST("/sessions", h.createSession)
	v1.GET("/sessions/:id", h.getSession)
	v1.POST("/sessions/:id/messages", h.postMessage)
	v1.DELETE("/sessions/:id", h.closeSession)
}

type messageRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	SessionID string        `json:"session_id"`
	Reply     advisor.Reply `json:"reply"`
}

func (h *Handler) createSession(c *gin.Context) {
	ctx := ctxutil.WithChannel(c.Request.Context(), Channel)
	s, err := h.sessions.Create(ctx, Channel)
	if err != nil {
		h.fail(c, "create_session", http.StatusInternalServerError, "could not create session", err)
		return
	}
	c.JSON(http.StatusCreated, s.Snapshot())
}

func (h *Handler) getSession(c *gin.Context) {
	s, ok := h.lookup(c, "get_session")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *Handler) postMessage(c *gin.Context) {
	const route = "post_message"

	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, route, http.StatusBadRequest, "body must be a JSON object with a message field", nil)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		h.fail(c, route, http.StatusBadRequest, "message must not be empty", nil)
		return
	}
	if h.maxChars > 0 && utf8.RuneCountInString(req.Message) > h.maxChars {
		h.fail(c, route, http.StatusRequestEntityTooLarge,
			"message exceeds "+strconv.Itoa(h.maxChars)+" characters", nil)
		return
	}

	s, ok := h.lookup(c, route)
	if !ok {
		return
	}

	if h.limiter != nil && !h.limiter.Allow(s.ID) {
		wait := h.limiter.RetryAfter(s.ID)
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		h.fail(c, route, http.StatusTooManyRequests, "too many messages, slow down", apperrors.ErrRateLimitExceeded)
		return
	}

	ctx := ctxutil.WithChannel(c.Request.Context(), s.Channel)
	if h.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.turnTimeout)
		defer cancel()
	}

	reply, err := h.controller.HandleTurn(ctx, s, req.Message)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, messageResponse{SessionID: s.ID, Reply: reply})
	case errors.Is(err, apperrors.ErrEmptyMessage):
		h.fail(c, route, http.StatusBadRequest, "message must not be empty", nil)
	case errors.Is(err, apperrors.ErrSessionClosed):
		h.fail(c, route, http.StatusGone, "session closed", err)
	case errors.Is(err, context.DeadlineExceeded):
		h.fail(c, route, http.StatusGatewayTimeout, "turn timed out", err)
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to send.
		c.Status(499)
	default:
		h.fail(c, route, http.StatusInternalServerError, "could not process message", err)
	}
}

func (h *Handler) closeSession(c *gin.Context) {
	const route = "close_session"
	id := c.Param("id")

	if err := h.sessions.Close(c.Request.Context(), id); err != nil {
		if apperrors.IsNotFound(err) {
			h.fail(c, route, http.StatusNotFound, "session not found", nil)
			return
		}
		h.fail(c, route, http.StatusInternalServerError, "could not close session", err)
		return
	}
	if h.limiter != nil {
		h.limiter.Forget(id)
	}
	c.Status(http.StatusNoContent)
}

// lookup resolves the :id parameter and writes the error response itself.
func (h *Handler) lookup(c *gin.Context, route string) (*advisor.Session, bool) {
	s, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err == nil {
		return s, true
	}
	if apperrors.IsNotFound(err) {
		h.fail(c, route, http.StatusNotFound, "session not found", nil)
	} else {
		h.fail(c, route, http.StatusInternalServerError, "could not load session", err)
	}
	return nil, false
}

// fail writes a JSON error body and records it. err is logged when set.
func (h *Handler) fail(c *gin.Context, route string, status int, msg string, err error) {
	if h.metrics != nil {
		h.metrics.RecordHTTPError(strconv.Itoa(status), route)
	}
	if err != nil {
		log := h.logger.WithError(err).WithField("route", route).WithField("status", status)
		if status >= http.StatusInternalServerError {
			log.ErrorContext(c.Request.Context(), "Request failed")
		} else {
			log.WarnContext(c.Request.Context(), "Request rejected")
		}
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
