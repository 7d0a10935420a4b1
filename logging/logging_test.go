package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/metrics-engine/logging"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logging.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, logging.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, logging.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logging.ParseLevel("bogus"))
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, "warn", "json")

	logger.Info("dropped")
	logger.Warn("kept", "tier", "durable")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "durable", line["tier"])
}

func TestNewWithWriter_TextLowercasesLevel(t *testing.T) {
	var buf bytes.Buffer
	logging.NewWithWriter(&buf, "info", "text").Info("hello")
	assert.Contains(t, buf.String(), "level=info")
}

func TestNewWithWriter_Terminal(t *testing.T) {
	var buf bytes.Buffer
	logging.NewWithWriter(&buf, "info", "terminal").Info("hello", "k", "v")
	assert.Contains(t, buf.String(), "hello")
}
