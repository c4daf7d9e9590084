package logger

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewRespectsLevel(t *testing.T) {
	log := New(Config{Level: "warn", Format: "json"})

	if log.GetLevel() != zerolog.WarnLevel {
		t.Errorf("expected warn level, got %v", log.GetLevel())
	}
}

func TestNewConsoleFormat(t *testing.T) {
	log := New(Config{Level: "debug", Format: "console"})

	if log.GetLevel() != zerolog.DebugLevel {
		t.Errorf("expected debug level, got %v", log.GetLevel())
	}
}
