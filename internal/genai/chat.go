package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/garyellow/edu-advisor/internal/metrics"
)

// ErrNoChatModel is returned when the chain has no models configured.
var ErrNoChatModel = errors.New("no chat model configured")

// FallbackChat tries an ordered chain of chat models. Each model is retried
// on transient errors; quota, auth and unknown-model errors move on to the
// next model, which may belong to a different provider.
type FallbackChat struct {
	models      []ChatModel
	retryConfig RetryConfig
}

// NewFallbackChat creates a chain from models, skipping nil entries.
func NewFallbackChat(cfg RetryConfig, models ...ChatModel) *FallbackChat {
	chain := make([]ChatModel, 0, len(models))
	for _, m := range models {
		if m != nil {
			chain = append(chain, m)
		}
	}
	return &FallbackChat{models: chain, retryConfig: cfg}
}

// Complete returns the first successful reply in chain order.
func (f *FallbackChat) Complete(ctx context.Context, req Request) (string, error) {
	if f == nil || len(f.models) == 0 {
		return "", ErrNoChatModel
	}
	op := req.Operation
	if op == "" {
		op = "chat"
	}

	start := time.Now()
	var lastErr error
	for i, model := range f.models {
		callStart := time.Now()
		reply, err := withRetry(ctx, f.retryConfig, model.Model(), func(ctx context.Context) (string, error) {
			return model.Complete(ctx, req)
		})
		if err == nil {
			recordLLMSuccess(model.Provider(), op, callStart)
			if i > 0 {
				recordFallback(f.models[0].Provider(), model.Provider(), op, time.Since(start))
			}
			return reply, nil
		}

		lastErr = err
		recordLLMError(model.Provider(), op, err)
		action := ClassifyError(err)
		slog.WarnContext(ctx, "chat model failed",
			"provider", model.Provider(),
			"model", model.Model(),
			"operation", op,
			"action", action,
			"error", err)

		if action == ActionFail || ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("all chat models failed: %w", lastErr)
}

// Models returns the configured chain length.
func (f *FallbackChat) Models() int {
	if f == nil {
		return 0
	}
	return len(f.models)
}

// Primary returns the first model's provider, or "" when empty.
func (f *FallbackChat) Primary() Provider {
	if f == nil || len(f.models) == 0 {
		return ""
	}
	return f.models[0].Provider()
}

// Close closes every model in the chain.
func (f *FallbackChat) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, m := range f.models {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func recordLLMSuccess(provider Provider, op string, start time.Time) {
	if metrics.LLMTotal == nil || metrics.LLMDuration == nil {
		return
	}
	metrics.LLMTotal.WithLabelValues(string(provider), op, "success").Inc()
	metrics.LLMDuration.WithLabelValues(string(provider), op).Observe(time.Since(start).Seconds())
}

func recordLLMError(provider Provider, op string, err error) {
	if metrics.LLMTotal == nil {
		return
	}
	metrics.LLMTotal.WithLabelValues(string(provider), op, errorLabel(err)).Inc()
}

func recordFallback(from, to Provider, op string, total time.Duration) {
	if metrics.LLMFallbackTotal != nil {
		metrics.LLMFallbackTotal.WithLabelValues(string(from), string(to), op).Inc()
	}
	if metrics.LLMFallbackLatency != nil {
		metrics.LLMFallbackLatency.WithLabelValues(op).Observe(total.Seconds())
	}
}
