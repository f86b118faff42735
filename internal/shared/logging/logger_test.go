package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"err":     slog.LevelError,
		"trace":   slog.LevelDebug - 2,
		"verbose": slog.LevelInfo,
	}
	for input, expected := range cases {
		if got := ParseLevel(input); got != expected {
			t.Fatalf("ParseLevel(%q) expected %v got %v", input, expected, got)
		}
	}
}

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Config{Level: "warn", Format: "json"})
	logger.Info("dropped")
	logger.Warn("ws client detached", slog.String("reason", "transport error"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line got %q", buf.String())
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record["msg"] != "ws client detached" || record["reason"] != "transport error" {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestOpenDailyCreatesDatedFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	file, err := OpenDaily(dir, time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()
	if _, err := os.Stat(filepath.Join(dir, "2024-05-01.log")); err != nil {
		t.Fatalf("expected dated log file: %v", err)
	}
}
