package logging

import (
	"bytes"
	"encoding/json"
	"log"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupRenamesKeys(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := setup(&buf, "escrow-demo", "test", slog.LevelInfo)
	logger.Info("flow finished", "flow", "charge")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "INFO", line["severity"])
	assert.Equal(t, "flow finished", line["message"])
	assert.Equal(t, "escrow-demo", line["service"])
	assert.Equal(t, "test", line["env"])
	assert.Equal(t, "charge", line["flow"])
	assert.Contains(t, line, "timestamp")
}

func TestSetupFiltersByLevel(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := setup(&buf, "escrow-demo", "", slog.LevelWarn)
	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestSetupBridgesStdLogger(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)
	defer log.SetOutput(log.Writer())

	var buf bytes.Buffer
	setup(&buf, "escrow-demo", "", slog.LevelInfo)
	log.Printf("listening on %s", ":8080")

	assert.Contains(t, buf.String(), `"message":"listening on :8080"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
