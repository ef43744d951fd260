package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTaskID_StringAndIsZero verifies TaskID zero-state and string behavior
// Given: A zero TaskID and a generated TaskID
// When: IsZero and String are called
// Then: Zero ID reports true and generated ID is non-zero with non-empty string
func TestTaskID_StringAndIsZero(t *testing.T) {
	var zero TaskID
	assert.True(t, zero.IsZero())

	id := GenerateTaskID()
	assert.False(t, id.IsZero())
	assert.NotEmpty(t, id.String())
	assert.NotEqual(t, id, GenerateTaskID())
}

func TestTaskPhase_String(t *testing.T) {
	assert.Equal(t, "primary", TaskPhasePrimary.String())
	assert.Equal(t, "post_execute", TaskPhasePostExecute.String())
	assert.Equal(t, "unknown", TaskPhase(42).String())
}

// TestGetCurrentDeferredRunner verifies extracting the runner from context
// Given: A plain context and a context of a running deferred task
// When: GetCurrentDeferredRunner is called
// Then: It returns nil for the plain context and the executing runner otherwise
func TestGetCurrentDeferredRunner(t *testing.T) {
	assert.Nil(t, GetCurrentDeferredRunner(context.Background()))

	runner := NewDeferredTaskRunnerWithConfig(nil, nil, &DeferredTaskRunnerConfig{Logger: NewNoOpLogger()})
	var got *DeferredTaskRunner
	runner.PostTask(func(ctx context.Context) {
		got = GetCurrentDeferredRunner(ctx)
	})
	require.NoError(t, runner.RunDeferredTasks())

	assert.Same(t, runner, got)
}

func TestPostExecute_NilContinuationIgnored(t *testing.T) {
	runner := NewDeferredTaskRunnerWithConfig(nil, nil, &DeferredTaskRunnerConfig{Logger: NewNoOpLogger()})
	runner.PostTask(func(ctx context.Context) {
		assert.NoError(t, PostExecute(ctx, nil))
	})
	require.NoError(t, runner.RunDeferredTasks())
	assert.Equal(t, 0, runner.NumPendingTasks())
}
