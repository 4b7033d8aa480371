package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// appName names the XDG subdirectory and the SPEICHERWALD_ env prefix.
const appName = "speicherwald"

// Config holds all configuration for the server, the scan engine's tunables,
// and the scheduler. Loaded in layers: defaults, then an optional config
// file, then environment variables — each layer overriding the last.
type Config struct {
	HTTPAddr string `mapstructure:"http_addr"`
	DBPath   string `mapstructure:"db_path"`
	LogLevel string `mapstructure:"log_level"`

	Scan      ScanConfig      `mapstructure:"scan"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ScanConfig mirrors internal/scan.Config's tunables plus the default root
// set and exclusions a scheduled rescan uses when no request overrides them.
type ScanConfig struct {
	RootPaths          []string `mapstructure:"root_paths"`
	Excludes           []string `mapstructure:"excludes"`
	BatchSize          int      `mapstructure:"batch_size"`
	FlushThreshold     int      `mapstructure:"flush_threshold"`
	FlushIntervalMs    int      `mapstructure:"flush_interval_ms"`
	DirConcurrency     int      `mapstructure:"dir_concurrency"`
	ProgressIntervalMs int      `mapstructure:"progress_interval_ms"`
	SizeCacheEntries   int      `mapstructure:"size_cache_entries"`
}

// SchedulerConfig configures the periodic full-rescan trigger.
type SchedulerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"`
}

// Load reads configuration from defaults, an optional config file found on
// the XDG config path, and SPEICHERWALD_-prefixed environment variables. A
// missing config file is not an error — sensible defaults carry the server.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(xdg.ConfigHome, appName))
	v.AddConfigPath(".")

	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// applyDefaults seeds viper with SpeicherWald's defaults. The scan tunables
// mirror original_source's ScannerConfig (batch_size=4000, flush_threshold=8000,
// flush_interval_ms=750, dir_concurrency=12, size_cache_entries=10000).
func applyDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("db_path", filepath.Join(xdg.DataHome, appName, "speicherwald.db"))
	v.SetDefault("log_level", "info")

	v.SetDefault("scan.excludes", []string{})
	v.SetDefault("scan.batch_size", 4000)
	v.SetDefault("scan.flush_threshold", 8000)
	v.SetDefault("scan.flush_interval_ms", 750)
	v.SetDefault("scan.dir_concurrency", 12)
	v.SetDefault("scan.progress_interval_ms", 500)
	v.SetDefault("scan.size_cache_entries", 10000)

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.cron", "0 2 * * 0")
}

// DataDir returns $XDG_DATA_HOME/speicherwald, the default home for the
// SQLite database file.
func DataDir() string {
	return filepath.Join(xdg.DataHome, appName)
}

// ConfigDir returns $XDG_CONFIG_HOME/speicherwald, where config.yaml lives.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, appName)
}
