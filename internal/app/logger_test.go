package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSONCarriesServiceAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{AppEnv: "staging", LogFormat: "json", LogLevel: "warn"}, &buf)

	logger.Info("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn("kept", slog.Int64("user_id", 7))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "opsboard", entry["service"])
	assert.Equal(t, "staging", entry["env"])
	assert.Equal(t, float64(7), entry["user_id"])
}

func TestLogLevelFallsBackToInfo(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, logLevel(nil))
	assert.Equal(t, slog.LevelInfo, logLevel(&Config{LogLevel: "loud"}))
	assert.Equal(t, slog.LevelDebug, logLevel(&Config{LogLevel: "DEBUG"}))
}
