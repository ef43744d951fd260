package ink

import "github.com/pikacuh/ink/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the ink package for most use cases.

// Task is the unit of work (Closure)
type Task = core.Task

// TaskID identifies a posted task
type TaskID = core.TaskID

// TaskPhase tells primary tasks from post-execute continuations
type TaskPhase = core.TaskPhase

// TaskRunner is the interface for posting tasks
type TaskRunner = core.TaskRunner

// DeferredTaskRunner queues work until the host loop drains it
type DeferredTaskRunner = core.DeferredTaskRunner

// DeferredTaskRunnerConfig configures a DeferredTaskRunner
type DeferredTaskRunnerConfig = core.DeferredTaskRunnerConfig

// SchedulingHook is called when a runner's queue becomes non-empty
type SchedulingHook = core.SchedulingHook

// FrameState is the default framerate lock provider
type FrameState = core.FrameState

// FramerateLock keeps the loop at full rate while held
type FramerateLock = core.FramerateLock

// FramerateLockProvider hands out framerate locks
type FramerateLockProvider = core.FramerateLockProvider

// FrameLoop runs a DeferredTaskRunner on a dedicated goroutine
type FrameLoop = core.FrameLoop

// FrameLoopConfig configures a FrameLoop
type FrameLoopConfig = core.FrameLoopConfig

// FrameInfo and FrameCallback describe the per-frame hook of a FrameLoop
type FrameInfo = core.FrameInfo
type FrameCallback = core.FrameCallback

// Phase constants
const (
	TaskPhasePrimary     TaskPhase = core.TaskPhasePrimary
	TaskPhasePostExecute TaskPhase = core.TaskPhasePostExecute
)

// FullFramerate asks for the provider's maximum frame rate
const FullFramerate = core.FullFramerate

// Errors
var (
	ErrDrainInProgress     = core.ErrDrainInProgress
	ErrPendingTasksDropped = core.ErrPendingTasksDropped
	ErrNoDeferredTask      = core.ErrNoDeferredTask
	ErrLoopStopped         = core.ErrLoopStopped
	ErrInvalidConfig       = core.ErrInvalidConfig
)

// NewDeferredTaskRunner creates a runner using lockProvider and hook with the
// default configuration.
func NewDeferredTaskRunner(lockProvider FramerateLockProvider, hook SchedulingHook) *DeferredTaskRunner {
	return core.NewDeferredTaskRunner(lockProvider, hook)
}

// NewDeferredTaskRunnerWithConfig creates a runner with a custom configuration.
func NewDeferredTaskRunnerWithConfig(lockProvider FramerateLockProvider, hook SchedulingHook, config *DeferredTaskRunnerConfig) *DeferredTaskRunner {
	return core.NewDeferredTaskRunnerWithConfig(lockProvider, hook, config)
}

// NewFrameState creates a FrameState with the given full and idle rates.
func NewFrameState(fullFPS, idleFPS int) *FrameState {
	return core.NewFrameState(fullFPS, idleFPS)
}

// NewFrameLoop creates a stopped FrameLoop.
func NewFrameLoop(config FrameLoopConfig) *FrameLoop {
	return core.NewFrameLoop(config)
}

// Convenience functions
var (
	DefaultFrameLoopConfig          = core.DefaultFrameLoopConfig
	DefaultDeferredTaskRunnerConfig = core.DefaultDeferredTaskRunnerConfig
	LoadFrameLoopConfig             = core.LoadFrameLoopConfig
	ParseFrameLoopConfig            = core.ParseFrameLoopConfig
)

// PostExecute registers a continuation for the deferred task running in ctx
var PostExecute = core.PostExecute

// GetCurrentDeferredRunner retrieves the draining runner from context
var GetCurrentDeferredRunner = core.GetCurrentDeferredRunner
