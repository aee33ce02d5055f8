package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the full watcher configuration. It is loaded once at startup and
// replaced atomically on update; schedulers observe a new value on their next
// tick. The on-disk representation is a single JSON document.
type Config struct {
	Server        ServerConfig     `json:"server" mapstructure:"server"`
	Telegram      TelegramConfig   `json:"telegram" mapstructure:"telegram"`
	Resources     ResourceConfig   `json:"resources" mapstructure:"resources" validate:"required"`
	ErrorPatterns ErrorPatterns    `json:"error_patterns" mapstructure:"error_patterns"`
	RestartOn     RestartConfig    `json:"restart_on" mapstructure:"restart_on"`
	Backup        BackupConfig     `json:"backup" mapstructure:"backup"`
	LogCleanup    LogCleanupConfig `json:"log_cleanup" mapstructure:"log_cleanup"`
	Web           WebConfig        `json:"web" mapstructure:"web"`
	History       HistoryConfig    `json:"history" mapstructure:"history"`
	Log           LogConfig        `json:"log" mapstructure:"log"`
}

// ServerConfig describes the supervised child process and its restart policy.
type ServerConfig struct {
	Executable            string   `json:"executable" mapstructure:"executable" validate:"required"`
	Arguments             []string `json:"arguments" mapstructure:"arguments"`
	WorkingDirectory      string   `json:"working_directory,omitempty" mapstructure:"working_directory"`
	RestartDelaySeconds   uint     `json:"restart_delay_seconds" mapstructure:"restart_delay_seconds"`
	MaxRestarts           *uint    `json:"max_restarts,omitempty" mapstructure:"max_restarts"`
	AutoRestartHourly     bool     `json:"auto_restart_hourly" mapstructure:"auto_restart_hourly"`
	RestartWarningMessage string   `json:"restart_warning_message" mapstructure:"restart_warning_message"`
	StopTimeoutSeconds    uint     `json:"stop_timeout_seconds" mapstructure:"stop_timeout_seconds"`
}

// TelegramConfig configures the notification channel. Disabled by default.
type TelegramConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Token   string `json:"token" mapstructure:"token" validate:"required_if=Enabled true"`
	ChatID  string `json:"chat_id" mapstructure:"chat_id" validate:"required_if=Enabled true"`
}

// ResourceConfig configures resource sampling and breach thresholds.
type ResourceConfig struct {
	CPUThresholdPercent  float64 `json:"cpu_threshold_percent" mapstructure:"cpu_threshold_percent" validate:"gte=0,lte=100"`
	MemoryThresholdMB    uint64  `json:"memory_threshold_mb" mapstructure:"memory_threshold_mb"`
	CheckIntervalSeconds uint    `json:"check_interval_seconds" mapstructure:"check_interval_seconds" validate:"gte=1"`
}

// ErrorPatterns holds the ordered substring lists matched against output
// lines, most severe first.
type ErrorPatterns struct {
	Critical []string `json:"critical" mapstructure:"critical"`
	Errors   []string `json:"errors" mapstructure:"errors"`
	Warnings []string `json:"warnings" mapstructure:"warnings"`
}

// RestartConfig selects which classified conditions trigger a restart.
type RestartConfig struct {
	Critical    bool `json:"critical" mapstructure:"critical"`
	Errors      bool `json:"errors" mapstructure:"errors"`
	Warnings    bool `json:"warnings" mapstructure:"warnings"`
	ProcessExit bool `json:"process_exit" mapstructure:"process_exit"`
}

// BackupConfig configures periodic archiving of the world/data folder.
type BackupConfig struct {
	Enabled       bool   `json:"enabled" mapstructure:"enabled"`
	SourceFolder  string `json:"source_folder" mapstructure:"source_folder" validate:"required_if=Enabled true"`
	BackupFolder  string `json:"backup_folder" mapstructure:"backup_folder" validate:"required_if=Enabled true"`
	IntervalHours uint   `json:"interval_hours" mapstructure:"interval_hours" validate:"required_if=Enabled true"`
	RetentionDays uint   `json:"retention_days" mapstructure:"retention_days"`
}

// LogCleanupConfig configures periodic deletion of aged log files.
type LogCleanupConfig struct {
	Enabled            bool   `json:"enabled" mapstructure:"enabled"`
	LogFolder          string `json:"log_folder" mapstructure:"log_folder" validate:"required_if=Enabled true"`
	RetentionHours     uint   `json:"retention_hours" mapstructure:"retention_hours" validate:"required_if=Enabled true"`
	CheckIntervalHours uint   `json:"check_interval_hours" mapstructure:"check_interval_hours" validate:"required_if=Enabled true"`
}

// WebConfig configures the HTTP API / event stream listener.
type WebConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Host      string `json:"host" mapstructure:"host"`
	Port      uint16 `json:"port" mapstructure:"port" validate:"required_if=Enabled true"`
	AuthToken string `json:"auth_token,omitempty" mapstructure:"auth_token"`
}

// HistoryConfig selects an optional lifecycle-event sink by DSN.
// Supported schemes: sqlite:// and postgres://.
type HistoryConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	DSN     string `json:"dsn" mapstructure:"dsn" validate:"required_if=Enabled true"`
}

// LogConfig configures the watcher's own log output (not the child's).
type LogConfig struct {
	Level      string `json:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	File       string `json:"file,omitempty" mapstructure:"file"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups,omitempty" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days,omitempty" mapstructure:"max_age_days"`
}

// Default returns the configuration written when no config file exists yet.
// The defaults target a typical Java game server.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Executable:            "java",
			Arguments:             []string{"-Xms4G", "-Xmx8G", "-jar", "server.jar"},
			RestartDelaySeconds:   30,
			AutoRestartHourly:     false,
			RestartWarningMessage: "Server will restart in 1 minute!",
			StopTimeoutSeconds:    10,
		},
		Telegram: TelegramConfig{Enabled: false},
		Resources: ResourceConfig{
			CPUThresholdPercent:  90,
			MemoryThresholdMB:    4096,
			CheckIntervalSeconds: 5,
		},
		ErrorPatterns: ErrorPatterns{
			Critical: []string{"FATAL", "Server crashed", "OutOfMemoryError"},
			Errors:   []string{"ERROR", "Exception"},
			Warnings: []string{"WARN", "Warning"},
		},
		RestartOn: RestartConfig{
			Critical:    true,
			ProcessExit: true,
		},
		Backup: BackupConfig{
			Enabled:       true,
			SourceFolder:  "universe",
			BackupFolder:  "backups",
			IntervalHours: 4,
			RetentionDays: 10,
		},
		LogCleanup: LogCleanupConfig{
			Enabled:            false,
			LogFolder:          "logs",
			RetentionHours:     72,
			CheckIntervalHours: 6,
		},
		Web: WebConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    3000,
		},
		History: HistoryConfig{Enabled: false},
		Log:     LogConfig{Level: "info"},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks structural invariants before a config may be applied.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Backup.Enabled && c.Backup.SourceFolder == c.Backup.BackupFolder {
		return fmt.Errorf("invalid config: backup source_folder and backup_folder must differ")
	}
	return nil
}

// Load reads the JSON config document at path. Environment variables with the
// WARDEN_ prefix override individual keys (WARDEN_WEB_PORT=8080).
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("WARDEN")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOrCreate loads the config at path, writing and returning the defaults
// when the file does not exist yet.
func LoadOrCreate(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.Save(path); err != nil {
			return Config{}, fmt.Errorf("write default config: %w", err)
		}
		return cfg, nil
	}
	return Load(path)
}

// Save writes the config as pretty-printed JSON.
func (c *Config) Save(path string) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	return os.WriteFile(path, append(b, '\n'), 0o600)
}
