package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerHonorsLevel(t *testing.T) {
	ctx := context.Background()

	logger := NewLogger(&Config{LogFormat: "json", LogLevel: "debug"})
	require.True(t, logger.Enabled(ctx, slog.LevelDebug))

	logger = NewLogger(&Config{LogFormat: "pretty", LogLevel: "warn"})
	require.False(t, logger.Enabled(ctx, slog.LevelInfo))
	require.True(t, logger.Enabled(ctx, slog.LevelWarn))

	// Unknown or missing levels fall back to info.
	logger = NewLogger(&Config{LogLevel: "verbose"})
	require.False(t, logger.Enabled(ctx, slog.LevelDebug))
	require.True(t, logger.Enabled(ctx, slog.LevelInfo))
	logger = NewLogger(nil)
	require.True(t, logger.Enabled(ctx, slog.LevelInfo))
}
