// Package config loads paneward configuration from file and environment.
//
// Precedence (highest to lowest):
//  1. Environment variables (PANEWARD_*)
//  2. Config file
//  3. Built-in defaults
//
// Config file search order:
//  1. .paneward.yaml in current directory
//  2. ~/.config/paneward/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all paneward configuration.
type Config struct {
	// State store
	RedisURL  string `yaml:"redis_url"`
	Namespace string `yaml:"namespace"`

	// Snapshots
	SnapshotRetention int `yaml:"snapshot_retention"`
	CompressAt        int `yaml:"compress_at"` // bytes; snapshot bodies above this are gzipped
	Parallelism       int `yaml:"parallelism"` // concurrent pane captures

	// Timeouts (Go duration strings, e.g. "5s")
	StoreTimeout string `yaml:"store_timeout"`
	MuxTimeout   string `yaml:"mux_timeout"`

	// Event bus; empty disables publishing
	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`

	// Extra redaction patterns on top of the built-in set
	RedactPatterns []string `yaml:"redact_patterns"`

	// OTEL
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELHeaders  string `yaml:"otel_headers"` // Comma-separated key=value pairs

	// Parsed durations (not from YAML, set after loading)
	StoreTimeoutDuration time.Duration `yaml:"-"`
	MuxTimeoutDuration   time.Duration `yaml:"-"`

	// ConfigFile is the path to the config file that was loaded (empty if none).
	ConfigFile string `yaml:"-"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		RedisURL:          "redis://127.0.0.1:6379/0",
		Namespace:         "paneward",
		SnapshotRetention: 20,
		CompressAt:        4096,
		Parallelism:       4,
		StoreTimeout:      "5s",
		MuxTimeout:        "5s",
		AMQPExchange:      "paneward.events",
	}
}

// Load reads configuration from file and environment variables.
// Environment variables always override file values.
func Load() (*Config, error) {
	cfg := Defaults()

	if path, data, err := findConfigFile(); err == nil {
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
		mergeFile(cfg, &fileCfg)
	}

	mergeEnv(cfg)

	var err error
	cfg.StoreTimeoutDuration, err = time.ParseDuration(cfg.StoreTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid store timeout %q: %w", cfg.StoreTimeout, err)
	}
	cfg.MuxTimeoutDuration, err = time.ParseDuration(cfg.MuxTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid mux timeout %q: %w", cfg.MuxTimeout, err)
	}
	if cfg.SnapshotRetention < 1 {
		return nil, fmt.Errorf("snapshot retention must be at least 1, got %d", cfg.SnapshotRetention)
	}

	return cfg, nil
}

// findConfigFile searches for a config file and returns its path and contents.
func findConfigFile() (string, []byte, error) {
	if data, err := os.ReadFile(".paneward.yaml"); err == nil {
		return ".paneward.yaml", data, nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "paneward", "config.yaml")
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}

	return "", nil, fmt.Errorf("no config file found")
}

// mergeFile applies non-zero file values onto cfg.
func mergeFile(cfg, file *Config) {
	if file.RedisURL != "" {
		cfg.RedisURL = file.RedisURL
	}
	if file.Namespace != "" {
		cfg.Namespace = file.Namespace
	}
	if file.SnapshotRetention != 0 {
		cfg.SnapshotRetention = file.SnapshotRetention
	}
	if file.CompressAt != 0 {
		cfg.CompressAt = file.CompressAt
	}
	if file.Parallelism != 0 {
		cfg.Parallelism = file.Parallelism
	}
	if file.StoreTimeout != "" {
		cfg.StoreTimeout = file.StoreTimeout
	}
	if file.MuxTimeout != "" {
		cfg.MuxTimeout = file.MuxTimeout
	}
	if file.AMQPURL != "" {
		cfg.AMQPURL = file.AMQPURL
	}
	if file.AMQPExchange != "" {
		cfg.AMQPExchange = file.AMQPExchange
	}
	if len(file.RedactPatterns) > 0 {
		cfg.RedactPatterns = file.RedactPatterns
	}
	if file.OTELEndpoint != "" {
		cfg.OTELEndpoint = file.OTELEndpoint
	}
	if file.OTELHeaders != "" {
		cfg.OTELHeaders = file.OTELHeaders
	}
}

// mergeEnv applies environment variables onto cfg.
func mergeEnv(cfg *Config) {
	if v := os.Getenv("PANEWARD_REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("PANEWARD_NAMESPACE"); v != "" {
		cfg.Namespace = v
	}
	if v := os.Getenv("PANEWARD_SNAPSHOT_RETENTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SnapshotRetention = n
		}
	}
	if v := os.Getenv("PANEWARD_COMPRESS_AT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CompressAt = n
		}
	}
	if v := os.Getenv("PANEWARD_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Parallelism = n
		}
	}
	if v := os.Getenv("PANEWARD_STORE_TIMEOUT"); v != "" {
		cfg.StoreTimeout = v
	}
	if v := os.Getenv("PANEWARD_MUX_TIMEOUT"); v != "" {
		cfg.MuxTimeout = v
	}
	if v := os.Getenv("PANEWARD_AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("PANEWARD_AMQP_EXCHANGE"); v != "" {
		cfg.AMQPExchange = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTELEndpoint = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); v != "" {
		cfg.OTELHeaders = v
	}
}
