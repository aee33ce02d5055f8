package stats

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/loykin/warden/internal/classify"
	"github.com/loykin/warden/internal/config"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/notify"
	"github.com/loykin/warden/internal/state"
)

// PIDFunc reports the supervised process id, or 0 when nothing is running.
type PIDFunc func() int32

// counters are the cumulative values a speed is derived from.
type counters struct {
	netRx, netTx     uint64
	diskRead, diskWr uint64
	at               time.Time
	valid            bool
}

// speed converts a cumulative byte counter delta into bytes per second.
// Counter resets (process restart, interface reset) produce a negative delta
// and report as zero rather than a bogus spike.
func speed(cur, prev uint64, elapsed time.Duration) float64 {
	if elapsed <= 0 || cur < prev {
		return 0
	}
	return float64(cur-prev) / elapsed.Seconds()
}

// breachTracker turns threshold comparisons into edge-triggered events: a
// sustained breach fires once, and only fires again after the value has
// dropped back under the threshold.
type breachTracker struct {
	cpuOver bool
	memOver bool
}

func (t *breachTracker) update(cpuOver, memOver bool) (cpuEdge, memEdge bool) {
	cpuEdge = cpuOver && !t.cpuOver
	memEdge = memOver && !t.memOver
	t.cpuOver = cpuOver
	t.memOver = memOver
	return
}

// Monitor samples the supervised process on the configured interval, publishes
// stats events, and raises edge-triggered warnings when a threshold is crossed.
type Monitor struct {
	cfg      *config.Store
	bc       *state.Broadcaster
	notifier notify.Dispatcher
	pid      PIDFunc

	proc   *process.Process
	prev   counters
	breach breachTracker

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewMonitor(cfg *config.Store, bc *state.Broadcaster, notifier notify.Dispatcher, pid PIDFunc) *Monitor {
	return &Monitor{
		cfg:      cfg,
		bc:       bc,
		notifier: notifier,
		pid:      pid,
		stop:     make(chan struct{}),
	}
}

// Start launches the sampling loop. The interval is re-read from config on
// every tick so hot-swapped settings take effect without a restart.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			interval := time.Duration(m.cfg.Current().Resources.CheckIntervalSeconds) * time.Second
			select {
			case <-m.stop:
				return
			case <-time.After(interval):
				m.tick()
			}
		}
	}()
}

func (m *Monitor) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
}

func (m *Monitor) tick() {
	pid := m.pid()
	if pid == 0 {
		m.reset()
		m.bc.PublishStats(state.StatsEvent{})
		metrics.ObserveResources(0, 0)
		return
	}

	if m.proc == nil || m.proc.Pid != pid {
		p, err := process.NewProcess(pid)
		if err != nil {
			slog.Debug("resource sample skipped", "pid", pid, "error", err)
			m.reset()
			return
		}
		m.proc = p
		m.prev = counters{}
	}

	ev := m.sample()
	m.bc.PublishStats(ev)
	metrics.ObserveResources(ev.CPUPercent, ev.MemoryMB)
	m.checkThresholds(ev)
}

func (m *Monitor) reset() {
	m.proc = nil
	m.prev = counters{}
	m.breach = breachTracker{}
}

func (m *Monitor) sample() state.StatsEvent {
	var ev state.StatsEvent

	// CPUPercent keeps per-handle history, so reusing the same Process gives
	// usage over the sampling interval rather than since process start.
	if cpu, err := m.proc.CPUPercent(); err == nil {
		ev.CPUPercent = cpu
	}
	if mi, err := m.proc.MemoryInfo(); err == nil {
		ev.MemoryMB = float64(mi.RSS) / (1024 * 1024)
		if vm, err := mem.VirtualMemory(); err == nil && vm.Total > 0 {
			ev.MemoryPercent = float64(mi.RSS) / float64(vm.Total) * 100
		}
	}

	now := time.Now()
	cur := counters{at: now, valid: true}
	if nics, err := net.IOCounters(false); err == nil && len(nics) > 0 {
		cur.netRx = nics[0].BytesRecv
		cur.netTx = nics[0].BytesSent
	}
	if io, err := m.proc.IOCounters(); err == nil {
		cur.diskRead = io.ReadBytes
		cur.diskWr = io.WriteBytes
	}
	if m.prev.valid {
		elapsed := now.Sub(m.prev.at)
		ev.NetworkRxSpeed = speed(cur.netRx, m.prev.netRx, elapsed)
		ev.NetworkTxSpeed = speed(cur.netTx, m.prev.netTx, elapsed)
		ev.DiskReadSpeed = speed(cur.diskRead, m.prev.diskRead, elapsed)
		ev.DiskWriteSpeed = speed(cur.diskWr, m.prev.diskWr, elapsed)
	}
	m.prev = cur
	return ev
}

func (m *Monitor) checkThresholds(ev state.StatsEvent) {
	res := m.cfg.Current().Resources
	cpuOver := res.CPUThresholdPercent > 0 && ev.CPUPercent > res.CPUThresholdPercent
	memOver := res.MemoryThresholdMB > 0 && ev.MemoryMB > float64(res.MemoryThresholdMB)

	cpuEdge, memEdge := m.breach.update(cpuOver, memOver)
	if cpuEdge {
		msg := fmt.Sprintf("CPU usage %.1f%% exceeds threshold %.1f%%", ev.CPUPercent, res.CPUThresholdPercent)
		m.bc.Log(classify.SeverityWarning, state.SourceWatcher, msg)
		m.notifier.Notify(notify.KindResource, msg)
	}
	if memEdge {
		msg := fmt.Sprintf("Memory usage %.0f MB exceeds threshold %d MB", ev.MemoryMB, res.MemoryThresholdMB)
		m.bc.Log(classify.SeverityWarning, state.SourceWatcher, msg)
		m.notifier.Notify(notify.KindResource, msg)
	}
}
