// Package config loads the server and CLI configuration from a YAML file,
// environment variables and an optional .env file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Ledger    LedgerConfig    `json:"ledger" yaml:"ledger"`
	Kafka     KafkaConfig     `json:"kafka" yaml:"kafka"`
	Log       LogConfig       `json:"log" yaml:"log"`
	Feed      FeedConfig      `json:"feed" yaml:"feed"`
	Directory DirectoryConfig `json:"directory" yaml:"directory"`
}

type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Driver      string `json:"driver" yaml:"driver"` // "memory" or "postgres"
	PostgresDSN string `json:"postgres_dsn,omitempty" yaml:"postgres_dsn,omitempty"`
}

type LedgerConfig struct {
	LockTimeout  time.Duration `json:"lock_timeout" yaml:"lock_timeout"`
	VerifyWrites *bool         `json:"verify_writes,omitempty" yaml:"verify_writes,omitempty"`
}

// Verify reports whether write-path reconciliation is on. It defaults to true.
func (c LedgerConfig) Verify() bool {
	return c.VerifyWrites == nil || *c.VerifyWrites
}

type KafkaConfig struct {
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	Brokers     []string `json:"brokers,omitempty" yaml:"brokers,omitempty"`
	TopicPrefix string   `json:"topic_prefix,omitempty" yaml:"topic_prefix,omitempty"`
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	Format     string `json:"format" yaml:"format"` // "text" or "json"
	File       string `json:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

type FeedConfig struct {
	DefaultLimit int `json:"default_limit" yaml:"default_limit"`
	DefaultDays  int `json:"default_days" yaml:"default_days"`
}

type DirectoryConfig struct {
	SeedFile string `json:"seed_file,omitempty" yaml:"seed_file,omitempty"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Addr: ":8080"},
		Storage: StorageConfig{Driver: DriverMemory},
		Ledger:  LedgerConfig{LockTimeout: 2 * time.Second},
		Kafka:   KafkaConfig{TopicPrefix: "ledger."},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Feed: FeedConfig{DefaultLimit: 10, DefaultDays: 7},
	}
}

// Load reads the file at path (YAML, falling back to JSON), applies
// environment overrides and validates the result. An empty path skips the
// file and starts from the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			if jerr := json.Unmarshal(data, cfg); jerr != nil {
				return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", errors.Join(err, jerr))
			}
		}
	}

	// A missing .env file is normal outside development.
	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("LEDGER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("LEDGER_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("LEDGER_POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("LEDGER_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Kafka.Brokers = append(c.Kafka.Brokers, b)
			}
		}
		c.Kafka.Enabled = len(c.Kafka.Brokers) > 0
	}
	if v := os.Getenv("LEDGER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LEDGER_LOCK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("LEDGER_LOCK_TIMEOUT: %w", err)
		}
		c.Ledger.LockTimeout = d
	}
	return nil
}

// fillDefaults restores defaults for fields a file explicitly zeroed.
func (c *Config) fillDefaults() {
	d := Default()
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = d.Storage.Driver
	}
	if c.Ledger.LockTimeout == 0 {
		c.Ledger.LockTimeout = d.Ledger.LockTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Feed.DefaultLimit == 0 {
		c.Feed.DefaultLimit = d.Feed.DefaultLimit
	}
	if c.Feed.DefaultDays == 0 {
		c.Feed.DefaultDays = d.Feed.DefaultDays
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver must be 'memory' or 'postgres', got %q", c.Storage.Driver)
	}
	if c.Ledger.LockTimeout < 0 {
		return fmt.Errorf("ledger.lock_timeout must not be negative")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be 'text' or 'json'")
	}
	if c.Feed.DefaultLimit < 0 || c.Feed.DefaultDays < 0 {
		return fmt.Errorf("feed defaults must not be negative")
	}
	return nil
}
