package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors, registered via Register.
var (
	regOK atomic.Bool

	serverStarts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "server",
		Name:      "starts_total",
		Help:      "Number of successful server starts.",
	})
	serverRestarts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "server",
		Name:      "restarts_total",
		Help:      "Number of completed restart cycles.",
	})
	serverStops = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "server",
		Name:      "stops_total",
		Help:      "Number of server stops (graceful or kill).",
	})
	serverState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "warden",
		Subsystem: "server",
		Name:      "state",
		Help:      "Current supervisor state (1 for the active state, 0 otherwise).",
	}, []string{"state"})
	logLines = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "server",
		Name:      "log_lines_total",
		Help:      "Classified output lines by severity.",
	}, []string{"level"})
	cpuPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "warden",
		Subsystem: "server",
		Name:      "cpu_percent",
		Help:      "CPU usage of the supervised process, one core = 100.",
	})
	memoryMB = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "warden",
		Subsystem: "server",
		Name:      "memory_mb",
		Help:      "Resident memory of the supervised process in MB.",
	})
	backupRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "backup",
		Name:      "runs_total",
		Help:      "Backup runs by result.",
	}, []string{"result"})
	backupLastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "warden",
		Subsystem: "backup",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last successful backup.",
	})
)

// Register installs all collectors on r. Safe to call more than once.
func Register(r prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		serverStarts, serverRestarts, serverStops, serverState,
		logLines, cpuPercent, memoryMB, backupRuns, backupLastSuccess,
	}
	for _, c := range collectors {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns the /metrics HTTP handler for the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

func IncStart()   { serverStarts.Inc() }
func IncRestart() { serverRestarts.Inc() }
func IncStop()    { serverStops.Inc() }

// SetState marks state as the single active supervisor state.
func SetState(state string) {
	for _, s := range []string{"stopped", "starting", "running", "stopping", "restarting", "error"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		serverState.WithLabelValues(s).Set(v)
	}
}

func IncLogLine(level string) { logLines.WithLabelValues(level).Inc() }

func ObserveResources(cpu float64, memMB float64) {
	cpuPercent.Set(cpu)
	memoryMB.Set(memMB)
}

func IncBackup(result string) { backupRuns.WithLabelValues(result).Inc() }

func SetBackupSuccess(unixSeconds float64) { backupLastSuccess.Set(unixSeconds) }

// Registered reports whether Register completed at least once.
func Registered() bool { return regOK.Load() }
