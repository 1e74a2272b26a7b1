package logging

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("warn", zapcore.AddSync(&buf))

	logger.Info("hidden")
	logger.Warn("shown", zap.String("target", "example.com:443"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("output = %q, want info message filtered", out)
	}
	if !strings.Contains(out, "warn\tshown") {
		t.Errorf("output = %q, want lowercase level and message", out)
	}
	if !strings.Contains(out, `"target": "example.com:443"`) {
		t.Errorf("output = %q, want structured field", out)
	}
}

func TestLogr(t *testing.T) {
	var buf bytes.Buffer
	logger := Logr(newLogger("info", zapcore.AddSync(&buf)))

	logger.Info("webhook sent", "attempt", 1)

	if !strings.Contains(buf.String(), "webhook sent") {
		t.Errorf("output = %q, want logr message", buf.String())
	}
}
