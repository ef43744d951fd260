package core

import "errors"

var (
	// Misuse errors.
	ErrDrainInProgress     = errors.New("taskrunner: drain already in progress")
	ErrPendingTasksDropped = errors.New("taskrunner: pending tasks dropped")
	ErrNoDeferredTask      = errors.New("taskrunner: context does not belong to an executing deferred task")

	// Lifecycle errors.
	ErrLoopStopped = errors.New("taskrunner: frame loop is stopped")

	// Configuration errors.
	ErrInvalidConfig = errors.New("taskrunner: invalid config")
)
