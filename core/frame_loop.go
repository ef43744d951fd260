package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// FrameInfo describes the frame passed to a FrameCallback.
type FrameInfo struct {
	Number    uint64
	TargetFPS int
	Pending   int
}

// FrameCallback renders one frame. It runs on the loop goroutine after the
// frame's deferred tasks have drained.
type FrameCallback func(ctx context.Context, frame FrameInfo)

type inboxEntry struct {
	name string
	task Task
	post Task
}

// FrameLoop binds a DeferredTaskRunner to a dedicated goroutine that ticks at
// the rate chosen by its FrameState: full rate while framerate locks are held
// and idle rate otherwise.
//
// PostTask may be called from any goroutine. Posted tasks are collected in an
// inbox and handed to the runner on the loop goroutine at the start of the
// next frame, so the runner itself is only ever touched by one goroutine.
// Tasks running on the loop can post straight to the runner through
// GetCurrentDeferredRunner(ctx) to have the work picked up by the same drain.
//
// Each frame:
// 1. Move the inbox into the runner
// 2. RunDeferredTasks if the runner asked for servicing
// 3. ServiceMainThreadTasks
// 4. Invoke the FrameCallback, if any
type FrameLoop struct {
	name       string
	frameState *FrameState
	runner     *DeferredTaskRunner
	logger     Logger
	rejected   RejectedTaskHandler
	metrics    Metrics

	// Inbox for cross-goroutine posts
	inboxMu sync.Mutex
	inbox   []inboxEntry
	wakeup  chan struct{}

	// Loop goroutine only
	drainRequested bool

	onFrame  FrameCallback
	frames   atomic.Uint64
	rejects  atomic.Int64
	finished chan struct{}

	// Lifecycle control
	stateMu   sync.Mutex
	cancel    context.CancelFunc
	stopped   chan struct{}
	running   atomic.Bool
	closed    atomic.Bool
	stopOnce  sync.Once
	finishErr error
}

var _ TaskRunner = (*FrameLoop)(nil)

// NewFrameLoop creates a stopped loop. Call Start to spawn its goroutine.
func NewFrameLoop(config FrameLoopConfig) *FrameLoop {
	if config.Name == "" {
		config.Name = "frame-loop"
	}
	runnerCfg := config.Runner.withDefaults()
	if config.Runner.Name == "" {
		runnerCfg.Name = config.Name
	}

	l := &FrameLoop{
		name:       config.Name,
		frameState: NewFrameState(config.FullFPS, config.IdleFPS),
		logger:     runnerCfg.Logger,
		rejected:   runnerCfg.RejectedTaskHandler,
		metrics:    runnerCfg.Metrics,
		wakeup:     make(chan struct{}, 1),
		finished:   make(chan struct{}),
	}
	l.runner = NewDeferredTaskRunnerWithConfig(l.frameState, l.requestDrain, &runnerCfg)
	return l
}

// Name returns the name of the loop
func (l *FrameLoop) Name() string {
	return l.name
}

// Runner returns the loop's runner. It must only be used from the loop
// goroutine, i.e. from tasks and frame callbacks.
func (l *FrameLoop) Runner() *DeferredTaskRunner {
	return l.runner
}

// FrameState returns the loop's framerate lock provider.
func (l *FrameLoop) FrameState() *FrameState {
	return l.frameState
}

// SetOnFrame installs the per-frame callback. It must be called before Start.
func (l *FrameLoop) SetOnFrame(cb FrameCallback) {
	l.onFrame = cb
}

// PostTask submits a task from any goroutine.
func (l *FrameLoop) PostTask(task Task) {
	l.post(inboxEntry{task: task})
}

// PostTaskNamed submits a named task from any goroutine.
func (l *FrameLoop) PostTaskNamed(name string, task Task) {
	l.post(inboxEntry{name: name, task: task})
}

// PostTaskWithPostExecute submits a task and its post-execute continuation
// from any goroutine.
func (l *FrameLoop) PostTaskWithPostExecute(task Task, post Task) {
	l.post(inboxEntry{task: task, post: post})
}

func (l *FrameLoop) post(entry inboxEntry) {
	if entry.task == nil {
		l.reject(RejectReasonNilTask)
		return
	}

	l.inboxMu.Lock()
	// Checked under inboxMu so finish cannot miss an entry
	if l.closed.Load() {
		l.inboxMu.Unlock()
		l.reject(RejectReasonClosed)
		return
	}
	l.inbox = append(l.inbox, entry)
	l.inboxMu.Unlock()

	l.wake()
}

func (l *FrameLoop) reject(reason string) {
	l.rejects.Add(1)
	l.metrics.RecordTaskRejected(l.name, reason)
	l.rejected.HandleRejectedTask(l.name, reason)
}

func (l *FrameLoop) wake() {
	select {
	case l.wakeup <- struct{}{}:
	default:
		// A wakeup is already pending
	}
}

// requestDrain is the runner's SchedulingHook. The runner is only used on the
// loop goroutine, so this runs there too.
func (l *FrameLoop) requestDrain() {
	l.drainRequested = true
}

// Start spawns the loop goroutine. Repeated calls are no-ops, as are calls
// after Stop.
func (l *FrameLoop) Start(ctx context.Context) {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()

	if l.cancel != nil || l.closed.Load() {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.stopped = make(chan struct{})
	l.running.Store(true)

	go l.runLoop(loopCtx)
}

// IsRunning reports whether the loop goroutine is alive.
func (l *FrameLoop) IsRunning() bool {
	return l.running.Load()
}

// IsClosed returns true once the loop has stopped accepting tasks.
func (l *FrameLoop) IsClosed() bool {
	return l.closed.Load()
}

// Stop stops the loop. Tasks already posted are drained before the runner is
// closed; tasks posted after Stop begins are rejected. The returned error is
// the runner's Close error, if any. Stop must not be called from a task.
func (l *FrameLoop) Stop() error {
	l.stopOnce.Do(func() {
		l.stateMu.Lock()
		cancel, stopped := l.cancel, l.stopped
		if cancel == nil {
			// Keeps a racing Start from spawning the goroutine
			l.closed.Store(true)
		}
		l.stateMu.Unlock()

		if cancel == nil {
			// Never started: nothing else touches the runner
			l.finishErr = l.finish(context.Background())
			return
		}
		cancel()
		<-stopped
	})
	return l.finishErr
}

// runLoop is the core of the loop, it occupies a dedicated goroutine
func (l *FrameLoop) runLoop(ctx context.Context) {
	defer close(l.stopped)
	defer l.running.Store(false)

	for {
		l.frame(ctx)

		fps := l.frameState.TargetFPS()
		idle := fps < l.frameState.FullFPS()
		timer := time.NewTimer(time.Second / time.Duration(fps))

	wait:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				l.finishErr = l.finish(context.WithoutCancel(ctx))
				return
			case <-timer.C:
				break wait
			case <-l.wakeup:
				// At full rate the next tick comes soon enough
				if idle {
					timer.Stop()
					break wait
				}
			}
		}
	}
}

func (l *FrameLoop) frame(ctx context.Context) {
	l.transferInbox()

	if l.drainRequested {
		l.drainRequested = false
		if err := l.runner.RunDeferredTasksContext(ctx); err != nil {
			l.logger.Error("frame drain failed", F("loop", l.name), F("error", err))
		}
	}
	l.runner.ServiceMainThreadTasks()

	n := l.frames.Add(1)
	if l.onFrame == nil {
		return
	}

	info := FrameInfo{
		Number:    n,
		TargetFPS: l.frameState.TargetFPS(),
		Pending:   l.runner.NumPendingTasks(),
	}
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				l.logger.Error("frame callback panicked", F("loop", l.name), F("frame", n), F("panic", rec))
			}
		}()
		l.onFrame(context.WithValue(ctx, deferredRunnerKey, l.runner), info)
	}()
}

func (l *FrameLoop) transferInbox() {
	l.inboxMu.Lock()
	entries := l.inbox
	l.inbox = nil
	l.inboxMu.Unlock()

	for _, e := range entries {
		if e.post != nil {
			l.runner.PostTaskWithPostExecute(e.task, e.post)
		} else {
			l.runner.PostTaskNamed(e.name, e.task)
		}
	}
}

// finish drains whatever was accepted and closes the runner.
func (l *FrameLoop) finish(ctx context.Context) error {
	defer close(l.finished)

	l.inboxMu.Lock()
	l.closed.Store(true)
	l.inboxMu.Unlock()

	l.transferInbox()
	if err := l.runner.RunDeferredTasksContext(ctx); err != nil {
		return fmt.Errorf("final drain of %s: %w", l.name, err)
	}
	return l.runner.Close()
}

// =============================================================================
// Synchronization Methods
// =============================================================================

// WaitIdle blocks until all tasks posted before the call, and the post-execute
// continuations they registered, have run.
//
// Returns error if:
// - Context is cancelled or deadline exceeded
// - The loop is closed when WaitIdle is called, or closes before the barrier runs
func (l *FrameLoop) WaitIdle(ctx context.Context) error {
	if l.IsClosed() {
		return ErrLoopStopped
	}

	done := make(chan struct{})
	l.PostTaskWithPostExecute(func(context.Context) {}, func(context.Context) {
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-l.finished:
		// The final drain has run: the barrier either ran in it or was rejected
		select {
		case <-done:
			return nil
		default:
			return ErrLoopStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the loop state.
func (l *FrameLoop) Stats() FrameStats {
	l.inboxMu.Lock()
	inboxDepth := len(l.inbox)
	l.inboxMu.Unlock()

	return FrameStats{
		Name:        l.name,
		Frames:      l.frames.Load(),
		TargetFPS:   l.frameState.TargetFPS(),
		FullFPS:     l.frameState.FullFPS(),
		IdleFPS:     l.frameState.IdleFPS(),
		LocksHeld:   l.frameState.LocksHeld(),
		LockReasons: l.frameState.Reasons(),
		InboxDepth:  inboxDepth,
		Rejected:    l.rejects.Load(),
		Running:     l.running.Load(),
	}
}
