package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/pikacuh/ink/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
	RoundBuckets    []float64
}

var defaultRoundBuckets = []float64{1, 2, 3, 5, 8, 13}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds  *prom.HistogramVec
	taskPanicTotal       *prom.CounterVec
	taskRejectedTotal    *prom.CounterVec
	queueDepth           *prom.GaugeVec
	drainDurationSeconds *prom.HistogramVec
	drainRounds          *prom.HistogramVec
	drainTasksTotal      *prom.CounterVec
	framerateLockHeld    *prom.GaugeVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "taskrunner"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}
	roundBuckets := opts.RoundBuckets
	if len(roundBuckets) == 0 {
		roundBuckets = defaultRoundBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Deferred task execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"runner", "phase"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of deferred task panics.",
	}, []string{"runner"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_rejected_total",
		Help:      "Total number of rejected tasks.",
	}, []string{"runner", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Pending primary and post-execute tasks.",
	}, []string{"runner"})
	drainDurationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "drain_duration_seconds",
		Help:      "Wall time of a full drain in seconds.",
		Buckets:   buckets,
	}, []string{"runner"})
	drainRoundsVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "drain_rounds",
		Help:      "Primary/post-execute rounds needed to empty the queue.",
		Buckets:   roundBuckets,
	}, []string{"runner"})
	drainTasksVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "drain_tasks_total",
		Help:      "Total number of tasks executed by drains.",
	}, []string{"runner"})
	lockHeldVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "framerate_lock_held",
		Help:      "Framerate lock state (1=held, 0=released).",
	}, []string{"runner"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if drainDurationVec, err = registerCollector(reg, drainDurationVec); err != nil {
		return nil, err
	}
	if drainRoundsVec, err = registerCollector(reg, drainRoundsVec); err != nil {
		return nil, err
	}
	if drainTasksVec, err = registerCollector(reg, drainTasksVec); err != nil {
		return nil, err
	}
	if lockHeldVec, err = registerCollector(reg, lockHeldVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds:  durationVec,
		taskPanicTotal:       panicVec,
		taskRejectedTotal:    rejectedVec,
		queueDepth:           queueDepthVec,
		drainDurationSeconds: drainDurationVec,
		drainRounds:          drainRoundsVec,
		drainTasksTotal:      drainTasksVec,
		framerateLockHeld:    lockHeldVec,
	}, nil
}

// RecordTaskDuration records task execution duration.
func (m *MetricsExporter) RecordTaskDuration(runnerName string, phase core.TaskPhase, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(runnerName, "unknown"), phase.String()).Observe(duration.Seconds())
}

// RecordTaskPanic records task panic events.
func (m *MetricsExporter) RecordTaskPanic(runnerName string, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(normalizeLabel(runnerName, "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(runnerName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(runnerName, "unknown")).Set(float64(depth))
}

// RecordTaskRejected records task rejection events.
func (m *MetricsExporter) RecordTaskRejected(runnerName string, reason string) {
	if m == nil {
		return
	}
	m.taskRejectedTotal.WithLabelValues(normalizeLabel(runnerName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordDrain records a completed drain.
func (m *MetricsExporter) RecordDrain(runnerName string, rounds int, executed int, duration time.Duration) {
	if m == nil {
		return
	}
	runner := normalizeLabel(runnerName, "unknown")
	m.drainDurationSeconds.WithLabelValues(runner).Observe(duration.Seconds())
	m.drainRounds.WithLabelValues(runner).Observe(float64(rounds))
	m.drainTasksTotal.WithLabelValues(runner).Add(float64(executed))
}

// RecordFramerateLock records framerate lock acquisition and release.
func (m *MetricsExporter) RecordFramerateLock(runnerName string, held bool) {
	if m == nil {
		return
	}
	m.framerateLockHeld.WithLabelValues(normalizeLabel(runnerName, "unknown")).Set(boolGauge(held))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
