package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSlogLoggerWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := &SlogLogger{inner: slog.New(slog.NewJSONHandler(&buf, nil))}

	logger.Info("call started", "call_id", "abc123")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected valid JSON output, got error: %v, output: %s", err, buf.String())
	}
	if record["msg"] != "call started" {
		t.Errorf("expected msg %q, got %v", "call started", record["msg"])
	}
	if record["call_id"] != "abc123" {
		t.Errorf("expected call_id abc123, got %v", record["call_id"])
	}
}

func TestSlogLoggerWithAddsPersistentAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := &SlogLogger{inner: slog.New(slog.NewJSONHandler(&buf, nil))}
	scoped := base.With("call_id", "xyz789")

	scoped.Warn("barge-in detected")

	if !strings.Contains(buf.String(), "xyz789") {
		t.Errorf("expected scoped logger output to carry call_id, got: %s", buf.String())
	}
}
