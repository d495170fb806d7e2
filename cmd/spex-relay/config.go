package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/spex/pkg/logging"
)

// Relay modes.
const (
	ModePage     = "page"
	ModeSequence = "sequence"
)

// Config is the spex-relay configuration file.
type Config struct {
	Redis   RedisConfig    `yaml:"redis"`
	Relay   RelayConfig    `yaml:"relay"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Log     logging.Config `yaml:"log"`
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

// RelayConfig describes what is moved where.
type RelayConfig struct {
	// Mode is "page" (LRANGE windows) or "sequence" (LPOP items).
	Mode      string `yaml:"mode"`
	SourceKey string `yaml:"source_key"`
	DestKey   string `yaml:"dest_key"`
	PageSize  int64  `yaml:"page_size"`
	// Limit caps the number of steps, 0 means unlimited.
	Limit int `yaml:"limit"`
}

// MetricsConfig holds the metrics server settings. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns the configuration used when no file is given.
// Environment variables override the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Redis: RedisConfig{
			Addr: getEnv("REDIS_URL", "localhost:6379"),
			DB:   getEnvInt("REDIS_DB", 0),
		},
		Relay: RelayConfig{
			Mode:     ModePage,
			PageSize: 100,
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ""),
		},
		Log: logging.Config{
			Level: logging.LogLevel(getEnv("LOG_LEVEL", string(logging.LevelInfo))),
		},
	}
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables in the config
	configStr := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(configStr), cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration can drive a relay.
func (c *Config) Validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.Relay.SourceKey == "" {
		return fmt.Errorf("relay.source_key is required")
	}
	if c.Relay.DestKey == "" {
		return fmt.Errorf("relay.dest_key is required")
	}
	if c.Relay.SourceKey == c.Relay.DestKey {
		return fmt.Errorf("relay.source_key and relay.dest_key must differ")
	}
	switch c.Relay.Mode {
	case ModePage, ModeSequence:
	default:
		return fmt.Errorf("relay.mode must be %q or %q, got %q", ModePage, ModeSequence, c.Relay.Mode)
	}
	if c.Relay.Limit < 0 {
		return fmt.Errorf("relay.limit must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
