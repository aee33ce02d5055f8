package client

import "time"

// Result is the outcome envelope returned by control endpoints.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Status mirrors the server's status event.
type Status struct {
	Status                   string  `json:"status"`
	PID                      int     `json:"pid,omitempty"`
	UptimeSecs               uint64  `json:"uptime_secs"`
	RestartCount             uint32  `json:"restart_count"`
	AutoRestartRemainingSecs *uint64 `json:"auto_restart_remaining_secs,omitempty"`
	NextBackupSecs           *uint64 `json:"next_backup_secs,omitempty"`
}

// Stats mirrors the server's resource sample event.
type Stats struct {
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryMB       float64 `json:"memory_mb"`
	MemoryPercent  float64 `json:"memory_percent"`
	NetworkRxSpeed float64 `json:"network_rx_speed"`
	NetworkTxSpeed float64 `json:"network_tx_speed"`
	DiskReadSpeed  float64 `json:"disk_read_speed"`
	DiskWriteSpeed float64 `json:"disk_write_speed"`
}

// LogEntry is one classified output line.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
}

// BackupInfo describes one archive on the server.
type BackupInfo struct {
	Name      string    `json:"name"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// FullState is the combined snapshot from /api/state.
type FullState struct {
	Status  Status       `json:"status"`
	Stats   Stats        `json:"stats"`
	Logs    []LogEntry   `json:"logs"`
	Backups []BackupInfo `json:"backups"`
}
