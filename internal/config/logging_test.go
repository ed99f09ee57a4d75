package config

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerToEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(LoggingConfig{Level: "info", Format: "json"}, &buf)

	logger.Info().Str("target", "nike").Msg("harvest started")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "harvest started", line["message"])
	assert.Equal(t, "nike", line["target"])
	assert.Equal(t, "info", line["level"])
	assert.Contains(t, line, "time")
}

func TestNewLoggerToConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(LoggingConfig{Level: "info", Format: "console"}, &buf)

	logger.Info().Msg("harvest started")

	out := buf.String()
	assert.Contains(t, out, "harvest started")
	assert.False(t, strings.HasPrefix(strings.TrimSpace(out), "{"), "console format is not JSON")
}

func TestNewLoggerToLevelFallback(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  zerolog.Level
	}{
		{name: "valid level", level: "debug", want: zerolog.DebugLevel},
		{name: "mixed case", level: "WARN", want: zerolog.WarnLevel},
		{name: "unknown level", level: "loud", want: zerolog.InfoLevel},
		{name: "empty level", level: "", want: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerTo(LoggingConfig{Level: tt.level}, &buf)
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestNewLoggerToFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(LoggingConfig{Level: "warn"}, &buf)

	logger.Info().Msg("quiet")
	assert.Empty(t, buf.String())

	logger.Warn().Msg("loud")
	assert.Contains(t, buf.String(), "loud")
}
