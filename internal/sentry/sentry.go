// Package sentry reports errors to Better Stack through the Sentry SDK.
package sentry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"

	"github.com/garyellow/edu-advisor/internal/ctxutil"
)

// Config holds the Better Stack Errors settings.
type Config struct {
	// Token is the Better Stack Errors application token. Empty disables reporting.
	Token string

	// Host is the ingesting host, e.g. "errors.betterstack.com".
	Host string

	Environment string
	Release     string

	// SampleRate is the share of errors sent (0.0-1.0). Zero means all.
	SampleRate float64

	Debug bool
}

// DSN builds the Sentry DSN Better Stack expects. The project ID is ignored
// by Better Stack but required by the SDK.
func (c Config) DSN() string {
	return fmt.Sprintf("https://%s@%s/1", c.Token, c.Host)
}

// Initialize sets up the SDK. An empty Token disables reporting.
func Initialize(cfg Config) error {
	if cfg.Token == "" {
		return nil
	}
	if cfg.Host == "" {
		return errors.New("sentry host is required when token is provided")
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN(),
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       sampleRate,
		Debug:            cfg.Debug,
		AttachStacktrace: true,
	})
}

// Flush waits for buffered events. It reports whether all were sent in time.
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// IsEnabled reports whether a client is configured.
func IsEnabled() bool {
	return sentry.CurrentHub().Client() != nil
}

// Middleware recovers panics in handlers, reports them and attaches a hub to
// each request context. Panics are re-raised for gin.Recovery to answer.
func Middleware() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	})
}

// CaptureExceptionWithContext reports err with the session, channel and
// request IDs carried by ctx.
func CaptureExceptionWithContext(ctx context.Context, err error) {
	if err == nil {
		return
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}

	hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tagsFromContext(ctx) {
			scope.SetTag(k, v)
		}
		hub.CaptureException(err)
	})
}

// CaptureMessage reports a message.
func CaptureMessage(message string) {
	sentry.CaptureMessage(message)
}

func tagsFromContext(ctx context.Context) map[string]string {
	tags := make(map[string]string, 3)
	if id := ctxutil.GetSessionID(ctx); id != "" {
		tags["session_id"] = id
	}
	if ch := ctxutil.GetChannel(ctx); ch != "" {
		tags["channel"] = ch
	}
	if id, ok := ctxutil.GetRequestID(ctx); ok && id != "" {
		tags["request_id"] = id
	}
	return tags
}
