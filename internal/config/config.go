package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to run the trend engine daemon.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Rules   RulesConfig   `yaml:"rules"`
	Metrics MetricsConfig `yaml:"metrics"`
	Daemon  DaemonConfig  `yaml:"daemon"`
}

// StorageConfig controls the on-disk history store.
type StorageConfig struct {
	// Dir is the state directory holding history.jsonl.
	Dir string `yaml:"dir"`
	// RetentionEntries bounds the number of records kept on disk.
	RetentionEntries int `yaml:"retentionEntries"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// RulesConfig controls rule-pack loading for the correlator.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// DaemonConfig controls the correlation loop.
type DaemonConfig struct {
	CorrelationInterval time.Duration `yaml:"correlationInterval"`
	GracefulTimeout     time.Duration `yaml:"gracefulTimeout"`
}

// Load initialises Config from a YAML file and optional environment overrides.
// An empty path falls back to TREND_ENGINE_CONFIG, then to pure defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("TREND_ENGINE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Storage.RetentionEntries <= 0 {
		return nil, fmt.Errorf("storage.retentionEntries must be positive, got %d", cfg.Storage.RetentionEntries)
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			Dir:              "/var/lib/trend-engine",
			RetentionEntries: 512,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Rules:   RulesConfig{Path: "configs/rules/default.yaml"},
		Metrics: MetricsConfig{Address: ":2112"},
		Daemon: DaemonConfig{
			CorrelationInterval: 5 * time.Minute,
			GracefulTimeout:     10 * time.Second,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TREND_ENGINE_STORAGE_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := os.Getenv("TREND_ENGINE_RETENTION_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Storage.RetentionEntries = n
		}
	}
	if v := os.Getenv("TREND_ENGINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TREND_ENGINE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("TREND_ENGINE_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("TREND_ENGINE_METRICS_ADDRESS"); v != "" {
		cfg.Metrics.Address = v
	}
	if v := os.Getenv("TREND_ENGINE_CORRELATION_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Daemon.CorrelationInterval = d
		}
	}
	if v := os.Getenv("TREND_ENGINE_GRACEFUL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Daemon.GracefulTimeout = d
		}
	}
}
