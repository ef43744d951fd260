package core

import (
	"context"

	"github.com/google/uuid"
)

// Task is the unit of work (Closure)
type Task func(ctx context.Context)

// TaskID identifies a task once it has been accepted by a runner.
type TaskID uuid.UUID

// GenerateTaskID returns a new random TaskID.
func GenerateTaskID() TaskID {
	return TaskID(uuid.New())
}

// IsZero reports whether the id was never assigned.
func (id TaskID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id TaskID) String() string {
	return uuid.UUID(id).String()
}

// =============================================================================
// TaskPhase: Which half of a drain round a task runs in
// =============================================================================

type TaskPhase int

const (
	// TaskPhasePrimary: Tasks posted to the runner
	TaskPhasePrimary TaskPhase = iota

	// TaskPhasePostExecute: Continuations registered by tasks of the current round.
	// They only run after every primary task of the round has finished.
	TaskPhasePostExecute
)

func (p TaskPhase) String() string {
	switch p {
	case TaskPhasePrimary:
		return "primary"
	case TaskPhasePostExecute:
		return "post_execute"
	default:
		return "unknown"
	}
}

// =============================================================================
// TaskRunner: Define task submission interface
// =============================================================================

// TaskRunner accepts work that runs later on the runner's servicing goroutine.
type TaskRunner interface {
	PostTask(task Task)
	PostTaskNamed(name string, task Task)
	PostTaskWithPostExecute(task Task, post Task)
}

// =============================================================================
// Context Helper
// =============================================================================
type deferredRunnerKeyType struct{}

var deferredRunnerKey deferredRunnerKeyType

type deferredItemKeyType struct{}

var deferredItemKey deferredItemKeyType

// GetCurrentDeferredRunner returns the runner executing the task that owns ctx.
func GetCurrentDeferredRunner(ctx context.Context) *DeferredTaskRunner {
	if v := ctx.Value(deferredRunnerKey); v != nil {
		return v.(*DeferredTaskRunner)
	}
	return nil
}

// PostExecute registers task as a post-execute continuation of the deferred task
// currently running with ctx. The continuation is queued when that task returns
// and runs after every primary task of the drain round.
//
// Returns ErrNoDeferredTask if ctx does not belong to an executing deferred task.
func PostExecute(ctx context.Context, task Task) error {
	item, ok := ctx.Value(deferredItemKey).(*deferredItem)
	if !ok || item == nil || item.finished {
		return ErrNoDeferredTask
	}
	if task == nil {
		return nil
	}
	item.continuations = append(item.continuations, task)
	return nil
}
