package app

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "Warn", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
	}
	for _, tc := range testCases {
		got, err := parseLogLevel(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := parseLogLevel("trace")
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorContains(t, err, `invalid log-level "trace"`)
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	t.Run("level filters records", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(&Config{LogLevel: "warn", LogFormat: "text"}, &buf)
		logger.Info("hidden")
		logger.Warn("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "msg=shown")
	})

	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(&Config{LogLevel: "debug", LogFormat: "json"}, &buf)
		logger.Debug("planned", "resource", "pool1")
		assert.Contains(t, buf.String(), `"msg":"planned"`)
		assert.Contains(t, buf.String(), `"resource":"pool1"`)
	})

	t.Run("validated config yields the configured level", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Provider.Type = ProviderMemory
		cfg.LogLevel = "ERROR"
		validated, err := NewConfig(cfg)
		require.NoError(t, err)
		assert.Equal(t, "error", validated.LogLevel)

		var buf bytes.Buffer
		logger := newLogger(validated, &buf)
		assert.False(t, logger.Enabled(context.Background(), slog.LevelWarn))
		assert.True(t, logger.Enabled(context.Background(), slog.LevelError))
	})
}
