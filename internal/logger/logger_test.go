package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	ctx := context.Background()

	debugLogger := New(&bytes.Buffer{}, true)
	assert.True(t, debugLogger.Enabled(ctx, slog.LevelDebug))

	infoLogger := New(&bytes.Buffer{}, false)
	assert.True(t, infoLogger.Enabled(ctx, slog.LevelInfo))
	assert.False(t, infoLogger.Enabled(ctx, slog.LevelDebug))
}

func TestHelpersWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	prev := Logger
	Logger = New(&buf, false)
	t.Cleanup(func() { Logger = prev })

	Warn("payment link send failed", "phone", "****4567")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "payment link send failed", entry["msg"])
	assert.Equal(t, "****4567", entry["phone"])
}

func TestHelpersNilSafe(t *testing.T) {
	prev := Logger
	Logger = nil
	t.Cleanup(func() { Logger = prev })

	assert.NotPanics(t, func() {
		Info("x")
		Error("x")
		Debug("x")
		Warn("x")
	})
}
