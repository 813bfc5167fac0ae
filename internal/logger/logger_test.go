package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/garyellow/edu-advisor/internal/ctxutil"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	line := strings.TrimSpace(buf.String())
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("Failed to parse JSON log %q: %v", line, err)
	}
	return entry
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogger_RenamedKeys(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWithWriter("debug", &buf)

	log.Warn("careful")

	entry := decodeLine(t, &buf)
	if entry["message"] != "careful" {
		t.Errorf("message = %v, want %q", entry["message"], "careful")
	}
	if entry["level"] != "warning" {
		t.Errorf("level = %v, want %q", entry["level"], "warning")
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("timestamp key missing")
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWithWriter("warn", &buf)

	log.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info record written at warn level: %s", buf.String())
	}
}

func TestLogger_Fields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)

	log.WithModule("advisor").
		WithSessionID("s-1").
		WithError(errors.New("boom")).
		WithFields(map[string]any{"state": "collecting"}).
		Info("turn")

	entry := decodeLine(t, &buf)
	want := map[string]string{
		"module":     "advisor",
		"session_id": "s-1",
		"error":      "boom",
		"state":      "collecting",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %q", k, entry[k], v)
		}
	}
}

func TestLogger_ContextValues(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)

	ctx := ctxutil.WithSessionID(context.Background(), "s-42")
	ctx = ctxutil.WithRequestID(ctx, "req-7")
	ctx = ctxutil.WithChannel(ctx, "http")
	log.InfoContext(ctx, "hello")

	entry := decodeLine(t, &buf)
	if entry["session_id"] != "s-42" {
		t.Errorf("session_id = %v, want %q", entry["session_id"], "s-42")
	}
	if entry["request_id"] != "req-7" {
		t.Errorf("request_id = %v, want %q", entry["request_id"], "req-7")
	}
	if entry["channel"] != "http" {
		t.Errorf("channel = %v, want %q", entry["channel"], "http")
	}
}

func TestLogger_ShutdownWithoutRemote(t *testing.T) {
	t.Parallel()
	log := NewWithWriter("info", &bytes.Buffer{})
	if err := log.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	var nilLogger *Logger
	if err := nilLogger.Shutdown(context.Background()); err != nil {
		t.Errorf("nil Shutdown() error = %v", err)
	}
}
