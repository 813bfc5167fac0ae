package ctxutil

import (
	"context"
	"testing"
	"time"
)

func TestSessionID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	if got := GetSessionID(ctx); got != "" {
		t.Errorf("GetSessionID() on empty context = %q, want empty", got)
	}

	ctx = WithSessionID(ctx, "s-1")
	if got := GetSessionID(ctx); got != "s-1" {
		t.Errorf("GetSessionID() = %q, want %q", got, "s-1")
	}

	if got := GetSessionID(WithSessionID(context.Background(), "")); got != "" {
		t.Errorf("GetSessionID() with empty value = %q, want empty", got)
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()
	if _, ok := GetRequestID(context.Background()); ok {
		t.Error("GetRequestID() on empty context reported ok")
	}

	id, ok := GetRequestID(WithRequestID(context.Background(), "req-9"))
	if !ok || id != "req-9" {
		t.Errorf("GetRequestID() = %q, %v; want %q, true", id, ok, "req-9")
	}
}

func TestPreserveTracing(t *testing.T) {
	t.Parallel()
	parent, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	parent = WithSessionID(parent, "s-2")
	parent = WithRequestID(parent, "req-2")
	parent = WithChannel(parent, "line")
	cancel()

	detached := PreserveTracing(parent)

	if detached.Err() != nil {
		t.Errorf("detached context should not inherit cancellation, got %v", detached.Err())
	}
	if _, ok := detached.Deadline(); ok {
		t.Error("detached context should not inherit deadline")
	}
	if got := GetSessionID(detached); got != "s-2" {
		t.Errorf("session id = %q, want %q", got, "s-2")
	}
	if got, _ := GetRequestID(detached); got != "req-2" {
		t.Errorf("request id = %q, want %q", got, "req-2")
	}
	if got := GetChannel(detached); got != "line" {
		t.Errorf("channel = %q, want %q", got, "line")
	}
}
