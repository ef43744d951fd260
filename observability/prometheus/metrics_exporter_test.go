package prometheus

import (
	"testing"
	"time"

	"github.com/pikacuh/ink/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("taskrunner", reg, ExporterOptions{})
	require.NoError(t, err)

	exporter.RecordTaskDuration("runner-a", core.TaskPhasePostExecute, 250*time.Millisecond)
	exporter.RecordTaskPanic("runner-a", "panic")
	exporter.RecordQueueDepth("runner-a", 7)
	exporter.RecordTaskRejected("runner-a", core.RejectReasonClosed)
	exporter.RecordDrain("runner-a", 2, 5, 10*time.Millisecond)
	exporter.RecordFramerateLock("runner-a", true)

	assert.Equal(t, 1.0, testutil.ToFloat64(exporter.taskPanicTotal.WithLabelValues("runner-a")))
	assert.Equal(t, 7.0, testutil.ToFloat64(exporter.queueDepth.WithLabelValues("runner-a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(exporter.taskRejectedTotal.WithLabelValues("runner-a", "closed")))
	assert.Equal(t, 5.0, testutil.ToFloat64(exporter.drainTasksTotal.WithLabelValues("runner-a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(exporter.framerateLockHeld.WithLabelValues("runner-a")))

	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("runner-a", "post_execute"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), histCount)

	roundCount, err := histogramSampleCount(exporter.drainRounds.WithLabelValues("runner-a"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), roundCount)

	exporter.RecordFramerateLock("runner-a", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(exporter.framerateLockHeld.WithLabelValues("runner-a")))
}

func TestMetricsExporter_EmptyLabelsFallBack(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("", reg, ExporterOptions{})
	require.NoError(t, err)

	exporter.RecordTaskRejected("", "")

	assert.Equal(t, 1.0, testutil.ToFloat64(exporter.taskRejectedTotal.WithLabelValues("unknown", "unknown")))
}

func TestMetricsExporter_NilReceiver(t *testing.T) {
	var exporter *MetricsExporter

	assert.NotPanics(t, func() {
		exporter.RecordTaskPanic("runner-a", nil)
		exporter.RecordDrain("runner-a", 1, 1, time.Millisecond)
		exporter.RecordFramerateLock("runner-a", true)
	})
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("taskrunner", reg, ExporterOptions{})
	require.NoError(t, err)
	second, err := NewMetricsExporter("taskrunner", reg, ExporterOptions{})
	require.NoError(t, err)

	first.RecordTaskPanic("runner-a", nil)
	second.RecordTaskPanic("runner-a", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(first.taskPanicTotal.WithLabelValues("runner-a")))
}

// TestMetricsExporter_WiredIntoRunner verifies the exporter observes a real drain
// Given: A runner whose config uses the exporter
// When: Two tasks are posted and drained
// Then: Lock gauge drops back to 0 and both tasks are counted
func TestMetricsExporter_WiredIntoRunner(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("taskrunner", reg, ExporterOptions{})
	require.NoError(t, err)

	cfg := core.DefaultDeferredTaskRunnerConfig()
	cfg.Name = "render"
	cfg.Logger = core.NewNoOpLogger()
	cfg.Metrics = exporter
	runner := core.NewDeferredTaskRunnerWithConfig(core.NewFrameState(60, 1), nil, cfg)

	runner.PostTask(noopTask)
	runner.PostTask(noopTask)
	assert.Equal(t, 1.0, testutil.ToFloat64(exporter.framerateLockHeld.WithLabelValues("render")))
	assert.Equal(t, 2.0, testutil.ToFloat64(exporter.queueDepth.WithLabelValues("render")))

	require.NoError(t, runner.RunDeferredTasks())

	assert.Equal(t, 0.0, testutil.ToFloat64(exporter.framerateLockHeld.WithLabelValues("render")))
	assert.Equal(t, 0.0, testutil.ToFloat64(exporter.queueDepth.WithLabelValues("render")))
	assert.Equal(t, 2.0, testutil.ToFloat64(exporter.drainTasksTotal.WithLabelValues("render")))
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
