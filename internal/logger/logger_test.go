package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"fatal", LevelFatal},
		{"INFO", LevelInfo},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{
		Level:  LevelDebug,
		Format: "json",
		Output: &buf,
	})

	log.Info("hello", F("component", "test"), F("count", 3))

	out := buf.String()
	if !strings.Contains(out, "hello") {
		t.Errorf("output missing message: %s", out)
	}
	if !strings.Contains(out, "component") || !strings.Contains(out, "test") {
		t.Errorf("output missing field: %s", out)
	}
}

func TestLoggerWithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{
		Level:  LevelInfo,
		Format: "json",
		Output: &buf,
	})

	child := log.With(F("component", "recorder"))
	child.Info("stored")

	if !strings.Contains(buf.String(), "recorder") {
		t.Errorf("child logger dropped bound field: %s", buf.String())
	}
}

func TestLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{
		Level:  LevelWarn,
		Format: "text",
		Output: &buf,
	})

	log.Debug("quiet")
	log.Info("quiet too")
	if buf.Len() != 0 {
		t.Errorf("expected no output below warn level, got: %s", buf.String())
	}

	log.Warn("loud")
	if !strings.Contains(buf.String(), "loud") {
		t.Errorf("warn output missing: %s", buf.String())
	}
}
