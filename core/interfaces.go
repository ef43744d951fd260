package core

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for drain tracing.
const tracerName = "github.com/pikacuh/ink/core"

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a deferred task panics during execution.
// The drain round continues with the next task after the handler returns.
//
// Implementations should be thread-safe as they may be shared between runners.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context the panicked task was running with
	// - runnerName: The name of the task runner where the panic occurred
	// - phase: The drain phase the task was running in
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, runnerName string, phase TaskPhase, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs panics through a Logger (DefaultLogger if nil).
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs panic information at error level.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, runnerName string, phase TaskPhase, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("deferred task panicked",
		F("runner", runnerName),
		F("phase", phase.String()),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting deferred task metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods are called on the servicing goroutine and should be non-blocking.
type Metrics interface {
	// RecordTaskDuration records how long a task took to execute.
	RecordTaskDuration(runnerName string, phase TaskPhase, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(runnerName string, panicInfo any)

	// RecordQueueDepth records the number of pending tasks across both phases.
	// Called after every post and after every drain.
	RecordQueueDepth(runnerName string, depth int)

	// RecordTaskRejected records that a task was refused (e.g. the runner is closed).
	RecordTaskRejected(runnerName string, reason string)

	// RecordDrain records a completed RunDeferredTasks call.
	//
	// Parameters:
	// - rounds: How many primary/post-execute rounds ran until the queue was empty
	// - executed: How many tasks ran across all rounds
	// - duration: Wall time of the whole drain
	RecordDrain(runnerName string, rounds int, executed int, duration time.Duration)

	// RecordFramerateLock records acquisition (held=true) and release of the framerate lock.
	RecordFramerateLock(runnerName string, held bool)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordTaskDuration is a no-op.
func (m *NilMetrics) RecordTaskDuration(runnerName string, phase TaskPhase, duration time.Duration) {
}

// RecordTaskPanic is a no-op.
func (m *NilMetrics) RecordTaskPanic(runnerName string, panicInfo any) {
}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(runnerName string, depth int) {
}

// RecordTaskRejected is a no-op.
func (m *NilMetrics) RecordTaskRejected(runnerName string, reason string) {
}

// RecordDrain is a no-op.
func (m *NilMetrics) RecordDrain(runnerName string, rounds int, executed int, duration time.Duration) {
}

// RecordFramerateLock is a no-op.
func (m *NilMetrics) RecordFramerateLock(runnerName string, held bool) {
}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// Rejection reasons passed to RejectedTaskHandler and Metrics.
const (
	RejectReasonClosed  = "closed"
	RejectReasonNilTask = "nil_task"
)

// RejectedTaskHandler is called when a task is refused by a runner.
// This can happen when:
// - The runner has been closed
// - The task is nil
type RejectedTaskHandler interface {
	HandleRejectedTask(runnerName string, reason string)
}

// DefaultRejectedTaskHandler logs rejected tasks at warn level.
type DefaultRejectedTaskHandler struct {
	Logger Logger
}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(runnerName string, reason string) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Warn("deferred task rejected", F("runner", runnerName), F("reason", reason))
}

// =============================================================================
// DeferredTaskRunnerConfig: Configuration for DeferredTaskRunner
// =============================================================================

// DeferredTaskRunnerConfig holds configuration options for DeferredTaskRunner.
// All handlers are optional; if not provided, default implementations will be used.
type DeferredTaskRunnerConfig struct {
	// Name labels logs, metrics and spans. Defaults to "deferred".
	Name string `yaml:"name"`

	// HistoryCapacity bounds the execution history ring. Defaults to 100.
	HistoryCapacity int `yaml:"history_capacity"`

	// Logger defaults to DefaultLogger.
	Logger Logger `yaml:"-"`

	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler `yaml:"-"`

	// Metrics is called to record task execution metrics. Defaults to NilMetrics.
	Metrics Metrics `yaml:"-"`

	// RejectedTaskHandler is called when a task is rejected. Defaults to DefaultRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler `yaml:"-"`

	// Tracer opens one span per drain. Defaults to the global otel tracer,
	// which is a noop until a TracerProvider is installed.
	Tracer trace.Tracer `yaml:"-"`
}

// DefaultDeferredTaskRunnerConfig returns a config with default handlers.
func DefaultDeferredTaskRunnerConfig() *DeferredTaskRunnerConfig {
	logger := NewDefaultLogger()
	return &DeferredTaskRunnerConfig{
		Name:                "deferred",
		HistoryCapacity:     defaultTaskHistoryCapacity,
		Logger:              logger,
		PanicHandler:        &DefaultPanicHandler{Logger: logger},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &DefaultRejectedTaskHandler{Logger: logger},
		Tracer:              otel.Tracer(tracerName),
	}
}

// withDefaults returns a copy of c with every unset field filled in.
func (c *DeferredTaskRunnerConfig) withDefaults() DeferredTaskRunnerConfig {
	def := DefaultDeferredTaskRunnerConfig()
	if c == nil {
		return *def
	}
	out := *c
	if out.Name == "" {
		out.Name = def.Name
	}
	if out.HistoryCapacity <= 0 {
		out.HistoryCapacity = def.HistoryCapacity
	}
	if out.Logger == nil {
		out.Logger = def.Logger
	}
	if out.PanicHandler == nil {
		out.PanicHandler = &DefaultPanicHandler{Logger: out.Logger}
	}
	if out.Metrics == nil {
		out.Metrics = def.Metrics
	}
	if out.RejectedTaskHandler == nil {
		out.RejectedTaskHandler = &DefaultRejectedTaskHandler{Logger: out.Logger}
	}
	if out.Tracer == nil {
		out.Tracer = def.Tracer
	}
	return out
}
