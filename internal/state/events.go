package state

import "time"

// Process status values as they appear on the wire.
const (
	StatusStopped    = "stopped"
	StatusStarting   = "starting"
	StatusRunning    = "running"
	StatusStopping   = "stopping"
	StatusRestarting = "restarting"
	StatusError      = "error"
)

// Log entry sources.
const (
	SourceServer  = "server"  // child stdout
	SourceStderr  = "stderr"  // child stderr
	SourceWatcher = "watcher" // generated by the engine itself
)

// Event type discriminators used by the push surface.
const (
	EventStatus = "status"
	EventStats  = "stats"
	EventLog    = "log"
)

// StatusEvent is the process-state snapshot pushed to subscribers.
type StatusEvent struct {
	Status                   string  `json:"status"`
	PID                      int     `json:"pid,omitempty"`
	UptimeSecs               uint64  `json:"uptime_secs"`
	RestartCount             uint32  `json:"restart_count"`
	AutoRestartRemainingSecs *uint64 `json:"auto_restart_remaining_secs,omitempty"`
	NextBackupSecs           *uint64 `json:"next_backup_secs,omitempty"`
}

// StatsEvent carries one resource sample. Rates are bytes per second.
type StatsEvent struct {
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryMB       float64 `json:"memory_mb"`
	MemoryPercent  float64 `json:"memory_percent"`
	NetworkRxSpeed float64 `json:"network_rx_speed"`
	NetworkTxSpeed float64 `json:"network_tx_speed"`
	DiskReadSpeed  float64 `json:"disk_read_speed"`
	DiskWriteSpeed float64 `json:"disk_write_speed"`
}

// LogEvent is one classified output line. Immutable once created.
type LogEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
}

// Event is the envelope delivered to subscribers.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
