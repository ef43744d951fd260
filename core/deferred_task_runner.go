package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SchedulingHook asks the environment to call RunDeferredTasks at some later
// point on the servicing goroutine. The runner calls it once per transition of
// its queue from empty to non-empty.
type SchedulingHook func()

// DeferredTaskRunner queues tasks posted from anywhere on the servicing side
// and runs them later, synchronously and in FIFO order, when RunDeferredTasks
// is called. While tasks are pending it holds a framerate lock so the frame
// loop keeps running at full rate; the lock is released once both the primary
// and post-execute queues have drained.
//
// A task may register post-execute continuations with PostExecute. They run
// after every primary task of the same drain round.
//
// DeferredTaskRunner is not safe for concurrent use: PostTask, RunDeferredTasks,
// ServiceMainThreadTasks and Close must be called from the servicing goroutine
// or under external synchronization. FrameLoop provides such a bridge. Stats
// and RecentTasks may be called from any goroutine.
type DeferredTaskRunner struct {
	queue            *DeferredQueue
	frameState       FramerateLockProvider
	requestServicing SchedulingHook
	framelock        FramerateLock

	draining atomic.Bool
	closed   bool

	name         string
	logger       Logger
	panicHandler PanicHandler
	metrics      Metrics
	rejected     RejectedTaskHandler
	tracer       trace.Tracer

	history *drainLog

	// Per-drain state, only touched on the servicing goroutine
	drainSeq      int64
	drainRound    int
	drainExecuted int
	drainPanicked int

	drains          atomic.Int64
	executed        atomic.Int64
	panicked        atomic.Int64
	rejectedCount   atomic.Int64
	strandedRelease atomic.Int64

	statsMu sync.Mutex
	stats   RunnerStats
}

var _ TaskRunner = (*DeferredTaskRunner)(nil)

// NewDeferredTaskRunner creates a runner with the default configuration.
func NewDeferredTaskRunner(frameState FramerateLockProvider, hook SchedulingHook) *DeferredTaskRunner {
	return NewDeferredTaskRunnerWithConfig(frameState, hook, nil)
}

// NewDeferredTaskRunnerWithConfig creates a runner that acquires framerate locks
// from frameState and signals hook when work becomes pending.
//
// A nil frameState uses a private FrameState. A nil hook is allowed when the
// caller drives RunDeferredTasks itself.
func NewDeferredTaskRunnerWithConfig(frameState FramerateLockProvider, hook SchedulingHook, config *DeferredTaskRunnerConfig) *DeferredTaskRunner {
	cfg := config.withDefaults()
	if frameState == nil {
		frameState = NewFrameState(0, 0)
	}
	if hook == nil {
		hook = func() {}
	}

	r := &DeferredTaskRunner{
		queue:            NewDeferredQueue(),
		frameState:       frameState,
		requestServicing: hook,
		name:             cfg.Name,
		logger:           cfg.Logger,
		panicHandler:     cfg.PanicHandler,
		metrics:          cfg.Metrics,
		rejected:         cfg.RejectedTaskHandler,
		tracer:           cfg.Tracer,
		history:          newDrainLog(cfg.HistoryCapacity),
	}
	r.publishStats()
	return r
}

// Name returns the name of the task runner
func (r *DeferredTaskRunner) Name() string {
	return r.name
}

// PostTask queues task for the next drain.
func (r *DeferredTaskRunner) PostTask(task Task) {
	r.PostTaskNamed("", task)
}

// PostTaskNamed queues task under name, which shows up in the execution history.
func (r *DeferredTaskRunner) PostTaskNamed(name string, task Task) {
	r.enqueue(task, func() { r.queue.PushNamed(name, task) })
}

// PostTaskWithPostExecute queues task with post already registered as its
// post-execute continuation.
func (r *DeferredTaskRunner) PostTaskWithPostExecute(task Task, post Task) {
	r.enqueue(task, func() { r.queue.PushWithPostExecute(task, post) })
}

func (r *DeferredTaskRunner) enqueue(task Task, push func()) {
	if task == nil {
		r.reject(RejectReasonNilTask)
		return
	}
	if r.closed {
		r.reject(RejectReasonClosed)
		return
	}

	wasEmpty := r.queue.IsEmpty()
	push()

	if wasEmpty {
		r.acquireFramerateLock()
		// A drain in progress loops until the queue is empty, so it picks
		// this task up without another request.
		if !r.draining.Load() {
			r.requestServicing()
		}
	}

	r.metrics.RecordQueueDepth(r.name, r.queue.Size())
	r.publishStats()
}

func (r *DeferredTaskRunner) reject(reason string) {
	r.rejectedCount.Add(1)
	r.metrics.RecordTaskRejected(r.name, reason)
	r.rejected.HandleRejectedTask(r.name, reason)
	r.publishStats()
}

// RunDeferredTasks runs every queued task, in the order they were received,
// until both queues are empty, then releases the framerate lock. Tasks posted
// while the drain runs are executed by the same call.
//
// Calling it with nothing queued is a no-op. Calling it while a drain is
// already running (from a task, or concurrently) returns ErrDrainInProgress.
func (r *DeferredTaskRunner) RunDeferredTasks() error {
	return r.RunDeferredTasksContext(context.Background())
}

// RunDeferredTasksContext is RunDeferredTasks with tasks receiving a context
// derived from ctx. Cancelling ctx does not stop the drain.
func (r *DeferredTaskRunner) RunDeferredTasksContext(ctx context.Context) error {
	if !r.draining.CompareAndSwap(false, true) {
		r.logger.Error("RunDeferredTasks called during a drain", F("runner", r.name))
		return ErrDrainInProgress
	}
	defer r.draining.Store(false)

	if r.queue.IsEmpty() {
		return nil
	}

	ctx, span := r.tracer.Start(ctx, "deferred.drain",
		trace.WithAttributes(
			attribute.String("taskrunner.runner", r.name),
			attribute.Int("taskrunner.pending", r.queue.Size()),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	runCtx := context.WithValue(ctx, deferredRunnerKey, r)
	startedAt := time.Now()
	r.drainSeq = r.drains.Load() + 1
	r.drainExecuted, r.drainPanicked = 0, 0

	rounds := 0
	for {
		rounds++
		r.drainRound = rounds
		if r.queue.DrainOnce(runCtx, r.executeTask) {
			break
		}
	}
	r.releaseFramerateLock()

	duration := time.Since(startedAt)
	r.drains.Add(1)

	span.SetAttributes(
		attribute.Int64("taskrunner.drain", r.drainSeq),
		attribute.Int("taskrunner.rounds", rounds),
		attribute.Int("taskrunner.executed", r.drainExecuted),
		attribute.Int("taskrunner.panicked", r.drainPanicked),
	)
	if r.drainPanicked > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d task(s) panicked", r.drainPanicked))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	r.metrics.RecordDrain(r.name, rounds, r.drainExecuted, duration)
	r.metrics.RecordQueueDepth(r.name, r.queue.Size())
	r.logger.Debug("deferred tasks drained",
		F("runner", r.name),
		F("rounds", rounds),
		F("executed", r.drainExecuted),
		F("panicked", r.drainPanicked),
		F("duration", duration),
	)
	r.publishStats()
	return nil
}

// executeTask is the TaskExecutor used by RunDeferredTasks. A panicking task is
// reported and isolated; the round carries on with the next task. Continuations
// are kept only if the task returned normally and did not close the runner.
func (r *DeferredTaskRunner) executeTask(ctx context.Context, task Task, info TaskInfo) (ok bool) {
	startedAt := time.Now()
	r.drainExecuted++
	r.executed.Add(1)

	defer func() {
		finishedAt := time.Now()
		duration := finishedAt.Sub(startedAt)

		panicked := false
		if rec := recover(); rec != nil {
			ok, panicked = false, true
			r.drainPanicked++
			r.panicked.Add(1)

			stack := debug.Stack()
			trace.SpanFromContext(ctx).AddEvent("task.panic", trace.WithAttributes(
				attribute.String("taskrunner.task.id", info.ID.String()),
				attribute.String("taskrunner.task.name", info.Name),
				attribute.String("taskrunner.task.phase", info.Phase.String()),
				attribute.String("taskrunner.panic", fmt.Sprint(rec)),
			))
			r.metrics.RecordTaskPanic(r.name, rec)
			r.panicHandler.HandlePanic(ctx, r.name, info.Phase, rec, stack)
		}

		r.metrics.RecordTaskDuration(r.name, info.Phase, duration)
		r.history.record(TaskExecutionRecord{
			TaskID:     info.ID,
			Name:       info.Name,
			RunnerName: r.name,
			Phase:      info.Phase,
			Drain:      r.drainSeq,
			Round:      r.drainRound,
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
			Duration:   duration,
			Panicked:   panicked,
		})
	}()

	task(ctx)
	return !r.closed
}

// ServiceMainThreadTasks is meant to be called every frame. It runs no tasks;
// it only releases a framerate lock left held after the queue became empty.
func (r *DeferredTaskRunner) ServiceMainThreadTasks() {
	if r.draining.Load() {
		// The drain releases the lock itself once it is done.
		return
	}
	if r.queue.IsEmpty() && r.framelock != nil {
		r.strandedRelease.Add(1)
		r.logger.Warn("releasing framerate lock held with no pending tasks", F("runner", r.name))
		r.releaseFramerateLock()
		r.publishStats()
	}
}

// NumPendingTasks returns the number of queued primary and post-execute tasks.
func (r *DeferredTaskRunner) NumPendingTasks() int {
	return r.queue.Size()
}

// FramerateLockHeld reports whether the runner currently holds a framerate lock.
func (r *DeferredTaskRunner) FramerateLockHeld() bool {
	return r.framelock != nil
}

// IsClosed returns true once Close has been called.
func (r *DeferredTaskRunner) IsClosed() bool {
	return r.closed
}

// Close stops accepting tasks and releases the framerate lock. Queued tasks
// are dropped; if there were any, Close logs them and returns an error
// wrapping ErrPendingTasksDropped. When a task calls Close, the continuations
// it registered are dropped as well. Closing twice is a no-op.
func (r *DeferredTaskRunner) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	dropped := r.queue.Clear()
	r.releaseFramerateLock()
	r.publishStats()

	if dropped > 0 {
		r.logger.Error("deferred task runner closed with pending tasks",
			F("runner", r.name),
			F("dropped", dropped),
		)
		return fmt.Errorf("%w: %d task(s) in runner %q", ErrPendingTasksDropped, dropped, r.name)
	}
	return nil
}

func (r *DeferredTaskRunner) acquireFramerateLock() {
	if r.framelock != nil {
		return
	}
	r.framelock = r.frameState.AcquireFramerateLock(FullFramerate, "deferred tasks pending on "+r.name)
	r.metrics.RecordFramerateLock(r.name, true)
}

func (r *DeferredTaskRunner) releaseFramerateLock() {
	if r.framelock == nil {
		return
	}
	r.framelock.Release()
	r.framelock = nil
	r.metrics.RecordFramerateLock(r.name, false)
}

// =============================================================================
// Observability
// =============================================================================

// Stats returns a snapshot taken at the end of the last public call.
func (r *DeferredTaskRunner) Stats() RunnerStats {
	r.statsMu.Lock()
	stats := r.stats
	r.statsMu.Unlock()

	stats.Draining = r.draining.Load()
	stats.Drains = r.drains.Load()
	stats.Executed = r.executed.Load()
	stats.Panicked = r.panicked.Load()
	stats.Rejected = r.rejectedCount.Load()
	stats.StrandedLockRelease = r.strandedRelease.Load()
	if last, ok := r.history.last(); ok {
		stats.LastTaskName = last.Name
		stats.LastTaskAt = last.FinishedAt
	}
	return stats
}

// RecentTasks returns up to limit of the most recent executions, newest first.
// A non-positive limit returns the whole history.
func (r *DeferredTaskRunner) RecentTasks(limit int) []TaskExecutionRecord {
	return r.history.collect(limit, nil)
}

// RecentTasksInPhase is RecentTasks restricted to one phase.
func (r *DeferredTaskRunner) RecentTasksInPhase(phase TaskPhase, limit int) []TaskExecutionRecord {
	return r.history.collect(limit, func(rec TaskExecutionRecord) bool {
		return rec.Phase == phase
	})
}

// DrainTasks returns the executions of the given drain, in the order they ran.
// Drains are numbered from 1 (see RunnerStats.Drains). Records that fell out
// of the history are missing.
func (r *DeferredTaskRunner) DrainTasks(drain int64) []TaskExecutionRecord {
	return r.history.drain(drain)
}

func (r *DeferredTaskRunner) publishStats() {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	r.stats = RunnerStats{
		Name:               r.name,
		Pending:            r.queue.Size(),
		PendingPrimary:     r.queue.PrimaryLen(),
		PendingPostExecute: r.queue.PostExecuteLen(),
		FramerateLockHeld:  r.framelock != nil,
		Closed:             r.closed,
	}
}
