package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(records []TaskExecutionRecord) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Name)
	}
	return out
}

// TestDrainLog_Wraps verifies the log keeps only the newest records
// Given: A log with capacity 3
// When: Five records are added
// Then: The three newest are returned newest first
func TestDrainLog_Wraps(t *testing.T) {
	log := newDrainLog(3)
	_, ok := log.last()
	assert.False(t, ok)

	for i, name := range []string{"a", "b", "c", "d", "e"} {
		log.record(TaskExecutionRecord{Name: name, Drain: int64(i/2 + 1)})
	}

	assert.Equal(t, []string{"e", "d", "c"}, names(log.collect(0, nil)))
	assert.Equal(t, []string{"e", "d"}, names(log.collect(2, nil)))
	last, ok := log.last()
	require.True(t, ok)
	assert.Equal(t, "e", last.Name)

	// Drain 2 was "c" and "d"; drain 1 fell out of the log
	assert.Equal(t, []string{"c", "d"}, names(log.drain(2)))
	assert.Empty(t, log.drain(1))
}

func TestDrainLog_DefaultCapacity(t *testing.T) {
	assert.Len(t, newDrainLog(0).records, defaultTaskHistoryCapacity)
}

// TestDeferredTaskRunner_DrainHistory verifies drain and round tagging
// Given: Task A whose continuation posts task D, then a second drain running E
// When: Both drains complete
// Then: DrainTasks lists each drain in execution order with its rounds
func TestDeferredTaskRunner_DrainHistory(t *testing.T) {
	f := newRunnerFixture(t)

	f.runner.PostTaskNamed("A", func(ctx context.Context) {
		_ = PostExecute(ctx, func(context.Context) {
			f.runner.PostTaskNamed("D", func(context.Context) {})
		})
	})
	require.NoError(t, f.runner.RunDeferredTasks())
	f.runner.PostTaskNamed("E", func(context.Context) {})
	require.NoError(t, f.runner.RunDeferredTasks())

	first := f.runner.DrainTasks(1)
	assert.Equal(t, []string{"A", "A/post", "D"}, names(first))
	require.Len(t, first, 3)
	assert.Equal(t, 1, first[0].Round)
	assert.Equal(t, 1, first[1].Round)
	assert.Equal(t, 2, first[2].Round)

	second := f.runner.DrainTasks(2)
	require.Len(t, second, 1)
	assert.Equal(t, "E", second[0].Name)
	assert.EqualValues(t, 2, second[0].Drain)

	post := f.runner.RecentTasksInPhase(TaskPhasePostExecute, 0)
	assert.Equal(t, []string{"A/post"}, names(post))
	assert.Equal(t, []string{"E", "D"}, names(f.runner.RecentTasksInPhase(TaskPhasePrimary, 2)))
}

func TestFuncName(t *testing.T) {
	assert.Equal(t, "core.TestFuncName.func1", funcName(func(context.Context) {}))
	assert.Equal(t, "anonymous", funcName(nil))
}
