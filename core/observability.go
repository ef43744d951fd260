package core

import "time"

// TaskExecutionRecord captures a completed task execution event.
type TaskExecutionRecord struct {
	TaskID     TaskID
	Name       string
	RunnerName string
	Phase      TaskPhase
	Drain      int64 // 1-based sequence number of the drain
	Round      int   // round within the drain, from 1
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Panicked   bool
}

// RunnerStats represents runtime observability state for a deferred task runner.
type RunnerStats struct {
	Name                string
	Pending             int
	PendingPrimary      int
	PendingPostExecute  int
	FramerateLockHeld   bool
	Draining            bool
	Closed              bool
	Drains              int64
	Executed            int64
	Panicked            int64
	Rejected            int64
	StrandedLockRelease int64
	LastTaskName        string
	LastTaskAt          time.Time
}

// FrameStats represents runtime observability state for a frame loop.
//
// Rejected counts tasks refused by the loop itself (nil, or posted after
// Stop). Those never reach the runner and are not part of RunnerStats.Rejected.
type FrameStats struct {
	Name        string
	Frames      uint64
	TargetFPS   int
	FullFPS     int
	IdleFPS     int
	LocksHeld   int
	LockReasons []string
	InboxDepth  int
	Rejected    int64
	Running     bool
}
