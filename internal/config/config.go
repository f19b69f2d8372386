package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server          ServerConfig       `koanf:"server" yaml:"server"`
	Store           StoreConfig        `koanf:"store" yaml:"store"`
	Analytics       AnalyticsConfig    `koanf:"analytics" yaml:"analytics"`
	Dashboard       DashboardConfig    `koanf:"dashboard" yaml:"dashboard"`
	Frame           FrameConfig        `koanf:"frame" yaml:"frame"`
	Daemon          DaemonConfig       `koanf:"daemon" yaml:"daemon"`
	ExperimentsFile string             `koanf:"experiments_file" yaml:"experiments_file"`
	Experiments     []ExperimentConfig `koanf:"experiments" yaml:"experiments"`
}

type ServerConfig struct {
	Port            int      `koanf:"port" yaml:"port"`
	LogLevel        string   `koanf:"log_level" yaml:"log_level"`
	ReadTimeout     string   `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    string   `koanf:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     string   `koanf:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout string   `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
	AllowedOrigins  []string `koanf:"allowed_origins" yaml:"allowed_origins"`
}

// StoreConfig selects the persisted key-value store holding assignments.
// Driver is one of "memory", "file" or "sqlite".
type StoreConfig struct {
	Driver       string `koanf:"driver" yaml:"driver"`
	Path         string `koanf:"path" yaml:"path"`
	LockTimeout  string `koanf:"lock_timeout" yaml:"lock_timeout"`
	LockRetry    string `koanf:"lock_retry" yaml:"lock_retry"`
	LockMaxRetry int    `koanf:"lock_max_retry" yaml:"lock_max_retry"`
}

type AnalyticsConfig struct {
	EventLogPath           string `koanf:"event_log_path" yaml:"event_log_path"`
	EventLogRotateMaxBytes int64  `koanf:"event_log_rotate_max_bytes" yaml:"event_log_rotate_max_bytes"`
	ExportDir              string `koanf:"export_dir" yaml:"export_dir"`
	ExportSchedule         string `koanf:"export_schedule" yaml:"export_schedule"`
	MetricsEnabled         bool   `koanf:"metrics_enabled" yaml:"metrics_enabled"`
}

type DashboardConfig struct {
	Enabled      bool   `koanf:"enabled" yaml:"enabled"`
	PollInterval string `koanf:"poll_interval" yaml:"poll_interval"`
	URL          string `koanf:"url" yaml:"url"`
}

type FrameConfig struct {
	Interval       string `koanf:"interval" yaml:"interval"`
	LoadingTimeout string `koanf:"loading_timeout" yaml:"loading_timeout"`
}

type DaemonConfig struct {
	DataPath            string `koanf:"data_path" yaml:"data_path"`
	ShutdownTimeout     string `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
	HealthCheckInterval string `koanf:"health_check_interval" yaml:"health_check_interval"`
}

type ExperimentConfig struct {
	ID       string          `koanf:"id" yaml:"id"`
	Variants []VariantConfig `koanf:"variants" yaml:"variants"`
}

type VariantConfig struct {
	ID     string         `koanf:"id" yaml:"id"`
	Name   string         `koanf:"name" yaml:"name"`
	Weight float64        `koanf:"weight" yaml:"weight"`
	Config map[string]any `koanf:"config" yaml:"config,omitempty"`
}

const (
	DefaultServerPort                      = 8080
	DefaultServerLogLevel                  = "info"
	DefaultServerReadTimeout               = "10s"
	DefaultServerWriteTimeout              = "10s"
	DefaultServerIdleTimeout               = "60s"
	DefaultServerShutdownTimeout           = "5s"
	DefaultStoreDriver                     = "file"
	DefaultStoreLockTimeout                = "30s"
	DefaultStoreLockRetry                  = "100ms"
	DefaultStoreLockMaxRetry               = 300
	DefaultAnalyticsEventLogRotateMaxBytes = 10 * 1024 * 1024
	DefaultAnalyticsExportSchedule         = "@every 5m"
	DefaultAnalyticsMetricsEnabled         = true
	DefaultDashboardEnabled                = true
	DefaultDashboardPollInterval           = "2s"
	DefaultDashboardURL                    = "http://localhost:8080"
	DefaultFrameInterval                   = "16ms"
	DefaultFrameLoadingTimeout             = "3s"
	DefaultDaemonShutdownTimeout           = "30s"
	DefaultDaemonHealthCheckInterval       = "30s"

	envPrefix = "SPLITKIT_"
)

// DefaultDataPath is where stores, event logs and exports live unless configured.
func DefaultDataPath() string {
	return filepath.Join(os.Getenv("HOME"), ".splitkit")
}

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                          DefaultServerPort,
		"server.log_level":                     DefaultServerLogLevel,
		"server.read_timeout":                  DefaultServerReadTimeout,
		"server.write_timeout":                 DefaultServerWriteTimeout,
		"server.idle_timeout":                  DefaultServerIdleTimeout,
		"server.shutdown_timeout":              DefaultServerShutdownTimeout,
		"server.allowed_origins":               []string{"*"},
		"store.driver":                         DefaultStoreDriver,
		"store.lock_timeout":                   DefaultStoreLockTimeout,
		"store.lock_retry":                     DefaultStoreLockRetry,
		"store.lock_max_retry":                 DefaultStoreLockMaxRetry,
		"analytics.event_log_rotate_max_bytes": DefaultAnalyticsEventLogRotateMaxBytes,
		"analytics.export_schedule":            DefaultAnalyticsExportSchedule,
		"analytics.metrics_enabled":            DefaultAnalyticsMetricsEnabled,
		"dashboard.enabled":                    DefaultDashboardEnabled,
		"dashboard.poll_interval":              DefaultDashboardPollInterval,
		"dashboard.url":                        DefaultDashboardURL,
		"frame.interval":                       DefaultFrameInterval,
		"frame.loading_timeout":                DefaultFrameLoadingTimeout,
		"daemon.data_path":                     DefaultDataPath(),
		"daemon.shutdown_timeout":              DefaultDaemonShutdownTimeout,
		"daemon.health_check_interval":         DefaultDaemonHealthCheckInterval,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", configPath, err)
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(home, ".splitkit", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil)

	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := resolvePaths(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DurationOrDefault parses a duration string and falls back to defaultValue when empty.
func DurationOrDefault(value string, defaultValue string) (time.Duration, error) {
	candidate := strings.TrimSpace(value)
	if candidate == "" {
		candidate = strings.TrimSpace(defaultValue)
	}
	if candidate == "" {
		return 0, fmt.Errorf("duration value is empty")
	}

	d, err := time.ParseDuration(candidate)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", candidate, err)
	}
	return d, nil
}

func resolvePaths(cfg *Config) error {
	dataPath, err := ExpandPath(cfg.Daemon.DataPath)
	if err != nil {
		return fmt.Errorf("expand daemon.data_path: %w", err)
	}
	if dataPath == "" {
		dataPath = DefaultDataPath()
	}
	cfg.Daemon.DataPath = dataPath

	storePath, err := ExpandPath(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("expand store.path: %w", err)
	}
	if storePath == "" {
		switch cfg.Store.Driver {
		case "sqlite":
			storePath = filepath.Join(dataPath, "store.db")
		default:
			storePath = filepath.Join(dataPath, "store.json")
		}
	}
	cfg.Store.Path = storePath

	exportDir, err := ExpandPath(cfg.Analytics.ExportDir)
	if err != nil {
		return fmt.Errorf("expand analytics.export_dir: %w", err)
	}
	if exportDir == "" {
		exportDir = filepath.Join(dataPath, "exports")
	}
	cfg.Analytics.ExportDir = exportDir

	eventLog, err := ExpandPath(cfg.Analytics.EventLogPath)
	if err != nil {
		return fmt.Errorf("expand analytics.event_log_path: %w", err)
	}
	cfg.Analytics.EventLogPath = eventLog

	experimentsFile, err := ExpandPath(cfg.ExperimentsFile)
	if err != nil {
		return fmt.Errorf("expand experiments_file: %w", err)
	}
	cfg.ExperimentsFile = experimentsFile

	return nil
}

// ExpandPath resolves environment variables and a leading "~/".
// Empty input yields an empty path.
func ExpandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}

	expanded := os.ExpandEnv(trimmed)
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return "", fmt.Errorf("resolve home dir: HOME is not set")
		}
		expanded = filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(expanded, "~"), "/"))
	}

	return filepath.Clean(expanded), nil
}
