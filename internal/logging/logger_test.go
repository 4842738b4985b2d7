package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{"DEBUG", log.DebugLevel},
		{"warn", log.WarnLevel},
		{"warning", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"", log.InfoLevel},
		{"verbose", log.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLoggerWithWriter(t *testing.T) {
	t.Setenv(envLevel, "debug")
	t.Setenv(envPrefix, "")

	var buf bytes.Buffer
	lg := NewLoggerWithWriter(&buf)
	lg.Debug("decoded", "va", "0x10")
	if err := lg.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "traverse") || !strings.Contains(out, "decoded") {
		t.Errorf("unexpected output %q", out)
	}
	if !IsDebug() {
		t.Error("IsDebug() = false with debug level set")
	}
}

func TestNewLoggerLevelFilters(t *testing.T) {
	t.Setenv(envLevel, "error")
	t.Setenv(envPrefix, "tv ")

	var buf bytes.Buffer
	lg := NewLoggerWithWriter(&buf)
	lg.Info("hidden")
	lg.Error("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at error level: %q", out)
	}
	if !strings.Contains(out, "tv") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output %q", out)
	}
}
