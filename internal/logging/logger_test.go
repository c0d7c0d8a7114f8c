package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewRespectsLevelFiltering(t *testing.T) {
	// New sets zerolog's global level; restore it so later tests in this
	// package are not filtered at warn.
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Format: "json"})
	logger = logger.Output(&buf)

	logger.Info().Msg("should be filtered")
	if buf.Len() != 0 {
		t.Fatalf("expected info message to be filtered at warn level, got %q", buf.String())
	}

	logger.Warn().Msg("should appear")
	if buf.Len() == 0 {
		t.Fatalf("expected warn message to be emitted")
	}
}

func TestComponentAddsField(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	logger := Component(base, "transport")
	logger.Info().Msg("hello")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode log line: %v", err)
	}
	if decoded["component"] != "transport" {
		t.Fatalf("expected component field %q, got %v", "transport", decoded["component"])
	}
}
