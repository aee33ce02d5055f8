package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestColorTextHandlerColorsLevel(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	l := slog.New(h)

	l.Warn("tick overrun", "ms", 120)
	out := buf.String()
	if !strings.Contains(out, "\033[33mWARN\033[0m") {
		t.Fatalf("missing colored level prefix: %q", out)
	}
	if !strings.Contains(out, "tick overrun") || !strings.Contains(out, "ms=120") {
		t.Fatalf("missing message or attrs: %q", out)
	}
}

func TestColorTextHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatalf("debug must be disabled at warn level")
	}
	slog.New(h).Debug("noise")
	if buf.Len() != 0 {
		t.Fatalf("debug record must be suppressed, got %q", buf.String())
	}
}

func TestColorTextHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, nil)
	l := slog.New(h).With("component", "backup")
	l.Info("run complete")
	if !strings.Contains(buf.String(), "component=backup") {
		t.Fatalf("WithAttrs lost: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
