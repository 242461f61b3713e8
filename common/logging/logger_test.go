package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/FortiumPartners/devpulse/common/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNew_Formats(t *testing.T) {
	for _, format := range []string{"json", "text", ""} {
		l := New(slog.LevelInfo, format)
		if l == nil || l.Logger == nil {
			t.Fatalf("New(%q) returned nil logger", format)
		}
	}
}

func TestWithContext_NoRequestID(t *testing.T) {
	l := New(slog.LevelInfo, "json")
	got := l.WithContext(context.Background())
	if got != l.Logger {
		t.Error("WithContext without request ID should return the base logger")
	}
}

func TestWithContext_RequestID(t *testing.T) {
	l := New(slog.LevelInfo, "json")
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-123")
	got := l.WithContext(ctx)
	if got == l.Logger {
		t.Error("WithContext with request ID should return a derived logger")
	}
}
