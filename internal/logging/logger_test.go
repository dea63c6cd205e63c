package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"TRACE", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("warn", "json", &buf)

	logger.Info("dropped")
	logger.Warn("lease expired", "ip", "10.0.0.5")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("output is not one JSON record: %v\n%s", err, buf.String())
	}
	if rec["msg"] != "lease expired" || rec["ip"] != "10.0.0.5" {
		t.Errorf("record = %v", rec)
	}
}

func TestSetupText(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("debug", "TEXT", &buf)
	logger.Debug("offer sent", "ip", "10.0.0.9")

	out := buf.String()
	if !strings.Contains(out, "msg=\"offer sent\"") || !strings.Contains(out, "ip=10.0.0.9") {
		t.Errorf("text output = %q", out)
	}
}
