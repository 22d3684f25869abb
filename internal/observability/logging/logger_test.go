package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func decodeLines(t *testing.T, raw string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid json line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestNewWithWriterTagsService(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "filing-api", "warn")

	logger.Info("dropped")
	logger.Warn("table corpus empty", "fallback", "text")

	entries := decodeLines(t, buf.String())
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0]["service"] != "filing-api" || entries[0]["fallback"] != "text" {
		t.Fatalf("unexpected entry %v", entries[0])
	}
}

func TestNewWithWriterRendersDurationsInMilliseconds(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "filing-worker", "info").Info("index rebuilt", "duration", 1500*time.Millisecond)

	entries := decodeLines(t, buf.String())
	if entries[0]["duration"] != 1500.0 {
		t.Fatalf("expected 1500ms, got %v", entries[0]["duration"])
	}
}

func TestNewWithWriterWarnsOnUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "filing-api", "verbose")
	logger.Debug("hidden")

	entries := decodeLines(t, buf.String())
	if len(entries) != 1 || entries[0]["level"] != "WARN" {
		t.Fatalf("expected a single level warning, got %v", entries)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
