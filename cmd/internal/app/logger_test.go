package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := newLoggerTo(&buf, "info", "json")
	log.Info("server.start", "addr", "127.0.0.1:5000")
	log.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec["msg"] != "server.start" || rec["addr"] != "127.0.0.1:5000" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestNewLogger_PrettyFormatWithoutTTY(t *testing.T) {
	var buf bytes.Buffer
	log := newLoggerTo(&buf, "debug", "pretty")
	log.Info("ws.subscribe", "versa_id", "VERSA-abcdef01")

	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("non-terminal writer must not get ANSI codes: %q", out)
	}
	if !strings.Contains(out, "[INFO]") || !strings.Contains(out, "versa_id=VERSA-abcdef01") {
		t.Fatalf("unexpected pretty output: %q", out)
	}
}
