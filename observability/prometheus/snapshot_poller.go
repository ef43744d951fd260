package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/pikacuh/ink/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// RunnerSnapshotProvider provides current runner stats snapshots.
type RunnerSnapshotProvider interface {
	Stats() core.RunnerStats
}

// LoopSnapshotProvider provides current frame loop stats snapshots.
type LoopSnapshotProvider interface {
	Stats() core.FrameStats
}

// SnapshotPoller periodically exports runner/loop Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	runnersMu sync.RWMutex
	runners   map[string]RunnerSnapshotProvider

	loopsMu sync.RWMutex
	loops   map[string]LoopSnapshotProvider

	runnerPending  *prom.GaugeVec
	runnerLockHeld *prom.GaugeVec
	runnerRejected *prom.GaugeVec
	runnerPanicked *prom.GaugeVec
	runnerDrains   *prom.GaugeVec
	runnerClosed   *prom.GaugeVec

	loopFrames    *prom.GaugeVec
	loopTargetFPS *prom.GaugeVec
	loopLocksHeld *prom.GaugeVec
	loopInbox     *prom.GaugeVec
	loopRunning   *prom.GaugeVec
	loopRejected  *prom.GaugeVec
	loopIdleFPS   *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	runnerPending := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "runner_pending",
		Help:      "Number of pending tasks per runner and phase.",
	}, []string{"runner", "phase"})
	runnerLockHeld := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "runner_framerate_lock_held",
		Help:      "Runner framerate lock state (1=held, 0=released).",
	}, []string{"runner"})
	runnerRejected := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "runner_rejected_total",
		Help:      "Runner rejected task count snapshot.",
	}, []string{"runner"})
	runnerPanicked := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "runner_panicked_total",
		Help:      "Runner panicked task count snapshot.",
	}, []string{"runner"})
	runnerDrains := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "runner_drains_total",
		Help:      "Runner completed drain count snapshot.",
	}, []string{"runner"})
	runnerClosed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "runner_closed",
		Help:      "Runner closed state (1=closed, 0=open).",
	}, []string{"runner"})

	loopFrames := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "loop_frames_total",
		Help:      "Frames run per loop.",
	}, []string{"loop"})
	loopTargetFPS := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "loop_target_fps",
		Help:      "Current target frame rate per loop.",
	}, []string{"loop"})
	loopLocksHeld := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "loop_framerate_locks",
		Help:      "Outstanding framerate locks per loop.",
	}, []string{"loop"})
	loopInbox := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "loop_inbox_depth",
		Help:      "Tasks posted from other goroutines awaiting the next frame.",
	}, []string{"loop"})
	loopRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "loop_running",
		Help:      "Loop running state (1=running, 0=stopped).",
	}, []string{"loop"})
	loopRejected := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "loop_rejected_tasks",
		Help:      "Tasks refused by the loop before reaching its runner.",
	}, []string{"loop"})
	loopIdleFPS := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "loop_idle_fps",
		Help:      "Frame rate used while no framerate lock is held.",
	}, []string{"loop"})

	var err error
	if runnerPending, err = registerCollector(reg, runnerPending); err != nil {
		return nil, err
	}
	if runnerLockHeld, err = registerCollector(reg, runnerLockHeld); err != nil {
		return nil, err
	}
	if runnerRejected, err = registerCollector(reg, runnerRejected); err != nil {
		return nil, err
	}
	if runnerPanicked, err = registerCollector(reg, runnerPanicked); err != nil {
		return nil, err
	}
	if runnerDrains, err = registerCollector(reg, runnerDrains); err != nil {
		return nil, err
	}
	if runnerClosed, err = registerCollector(reg, runnerClosed); err != nil {
		return nil, err
	}
	if loopFrames, err = registerCollector(reg, loopFrames); err != nil {
		return nil, err
	}
	if loopTargetFPS, err = registerCollector(reg, loopTargetFPS); err != nil {
		return nil, err
	}
	if loopLocksHeld, err = registerCollector(reg, loopLocksHeld); err != nil {
		return nil, err
	}
	if loopInbox, err = registerCollector(reg, loopInbox); err != nil {
		return nil, err
	}
	if loopRunning, err = registerCollector(reg, loopRunning); err != nil {
		return nil, err
	}
	if loopRejected, err = registerCollector(reg, loopRejected); err != nil {
		return nil, err
	}
	if loopIdleFPS, err = registerCollector(reg, loopIdleFPS); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:       interval,
		runners:        make(map[string]RunnerSnapshotProvider),
		loops:          make(map[string]LoopSnapshotProvider),
		runnerPending:  runnerPending,
		runnerLockHeld: runnerLockHeld,
		runnerRejected: runnerRejected,
		runnerPanicked: runnerPanicked,
		runnerDrains:   runnerDrains,
		runnerClosed:   runnerClosed,
		loopFrames:     loopFrames,
		loopTargetFPS:  loopTargetFPS,
		loopLocksHeld:  loopLocksHeld,
		loopInbox:      loopInbox,
		loopRunning:    loopRunning,
		loopRejected:   loopRejected,
		loopIdleFPS:    loopIdleFPS,
	}, nil
}

// AddRunner adds or replaces a runner snapshot provider by name.
func (p *SnapshotPoller) AddRunner(name string, provider RunnerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "runner")
	p.runnersMu.Lock()
	p.runners[name] = provider
	p.runnersMu.Unlock()
}

// AddLoop adds or replaces a frame loop snapshot provider by name.
func (p *SnapshotPoller) AddLoop(name string, provider LoopSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "loop")
	p.loopsMu.Lock()
	p.loops[name] = provider
	p.loopsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.runnersMu.RLock()
	for name, provider := range p.runners {
		stats := provider.Stats()
		p.runnerPending.WithLabelValues(name, core.TaskPhasePrimary.String()).Set(float64(stats.PendingPrimary))
		p.runnerPending.WithLabelValues(name, core.TaskPhasePostExecute.String()).Set(float64(stats.PendingPostExecute))
		p.runnerLockHeld.WithLabelValues(name).Set(boolGauge(stats.FramerateLockHeld))
		p.runnerRejected.WithLabelValues(name).Set(float64(stats.Rejected))
		p.runnerPanicked.WithLabelValues(name).Set(float64(stats.Panicked))
		p.runnerDrains.WithLabelValues(name).Set(float64(stats.Drains))
		p.runnerClosed.WithLabelValues(name).Set(boolGauge(stats.Closed))
	}
	p.runnersMu.RUnlock()

	p.loopsMu.RLock()
	for name, provider := range p.loops {
		stats := provider.Stats()
		p.loopFrames.WithLabelValues(name).Set(float64(stats.Frames))
		p.loopTargetFPS.WithLabelValues(name).Set(float64(stats.TargetFPS))
		p.loopLocksHeld.WithLabelValues(name).Set(float64(stats.LocksHeld))
		p.loopInbox.WithLabelValues(name).Set(float64(stats.InboxDepth))
		p.loopRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
		p.loopRejected.WithLabelValues(name).Set(float64(stats.Rejected))
		p.loopIdleFPS.WithLabelValues(name).Set(float64(stats.IdleFPS))
	}
	p.loopsMu.RUnlock()
}
