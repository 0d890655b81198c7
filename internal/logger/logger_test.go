package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// TestParseLogLevel verifies mapping from strings to zapcore.Level and handling of unknown values.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"WARNING": zapcore.WarnLevel,
		" Debug ": zapcore.DebugLevel,
		"":        zapcore.InfoLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok)
		require.Equal(t, lvl, got)
	}

	for _, s := range []string{"unknown", "panic", "fatal"} {
		_, ok := ParseLogLevel(s)
		require.False(t, ok, s)
	}
}

// TestFromContextFallsBackToGlobal checks that a bare context yields the global logger.
func TestFromContextFallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, global, FromContext(context.Background()))

	named := WithName(context.Background(), "probe")
	require.NotSame(t, global, FromContext(named))
}

// TestNewWithFileWritesMessages ensures file output carries the message and a plain level.
func TestNewWithFileWritesMessages(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "install.log")

	l, closer, err := NewWithFile(zapcore.DebugLevel, path)
	require.NoError(t, err)

	ctx := ToContext(context.Background(), l)
	InfoKV(ctx, "Transaction state changed", "to", "Complete")

	require.NoError(t, closer.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), "Transaction state changed")
	require.Contains(t, string(contents), "INFO")
	require.Contains(t, string(contents), "Complete")
}
