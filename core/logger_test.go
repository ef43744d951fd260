package core

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLogger_ForwardsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	logger.Warn("framerate lock released", F("runner", "render"), F("pending", 0))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "framerate lock released", entry["msg"])
	assert.Equal(t, "render", entry["runner"])
	assert.EqualValues(t, 0, entry["pending"])
}

func TestSlogLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))

	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	logger.Error("shown", F("k", "v"))
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "k=v")
}

func TestSlogLogger_NilUsesDefault(t *testing.T) {
	assert.NotNil(t, NewSlogLogger(nil).logger)
}

// TestRunnerLogsThroughSlog verifies the runner's logger hook
// Given: A runner configured with a SlogLogger at debug level
// When: A drain completes and the runner is closed with pending work
// Then: The drain is logged at debug and the dropped work at error
func TestRunnerLogsThroughSlog(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultDeferredTaskRunnerConfig()
	cfg.Logger = NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	runner := NewDeferredTaskRunnerWithConfig(nil, nil, cfg)

	runner.PostTask(func(ctx context.Context) {})
	require.NoError(t, runner.RunDeferredTasks())
	assert.Contains(t, buf.String(), "deferred tasks drained")

	runner.PostTask(func(ctx context.Context) {})
	require.Error(t, runner.Close())
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "dropped=1")
}
