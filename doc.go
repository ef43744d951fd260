// Package ink provides a deferred task runner for render-loop style programs.
//
// Work that must not run in the middle of the current call stack (layout
// invalidation, resource teardown, notifications) is posted to a
// DeferredTaskRunner and executed later, when the host loop drains it. While
// anything is pending the runner holds a framerate lock so the loop keeps
// ticking at full rate; once the queue is empty the lock is released and the
// loop may drop back to its idle rate.
//
// # Quick Start
//
// Run a FrameLoop, which owns a runner and a dedicated goroutine:
//
//	loop := ink.NewFrameLoop(ink.DefaultFrameLoopConfig())
//	loop.Start(ctx)
//	defer loop.Stop()
//
//	loop.PostTask(func(ctx context.Context) {
//		// Runs on the loop goroutine during the next frame
//	})
//
// Or drive a runner yourself from a single goroutine:
//
//	state := ink.NewFrameState(60, 1)
//	runner := ink.NewDeferredTaskRunner(state, func() {
//		// Called once each time the queue goes from empty to non-empty.
//		// Arrange for RunDeferredTasks to be called soon.
//	})
//	runner.PostTask(task)
//	_ = runner.RunDeferredTasks()
//
// # Key Concepts
//
// Primary and post-execute tasks: a drain runs every primary task first, in
// posting order. A primary task may register continuations with PostExecute;
// these run after the primary batch, also in order. Tasks A and B that each
// register a continuation therefore run as A, B, A', B'.
//
// Reentrancy: tasks may post more work while a drain is running. New primary
// work posted by a primary task joins the current batch. The drain only
// returns once both queues are empty.
//
// Failure policy: a panicking task is recovered and reported to the
// configured PanicHandler, Metrics and tracer. Its continuations are
// discarded; the rest of the drain carries on.
//
// # Thread Safety
//
// DeferredTaskRunner is single-threaded: every method must be called from the
// goroutine that drains it. FrameLoop.PostTask is the safe entry point from
// other goroutines.
package ink
