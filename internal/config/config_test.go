package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 2*time.Second, cfg.Ledger.LockTimeout)
	assert.True(t, cfg.Ledger.Verify())
	assert.Equal(t, "ledger.", cfg.Kafka.TopicPrefix)
	assert.Equal(t, 10, cfg.Feed.DefaultLimit)
	assert.Equal(t, 7, cfg.Feed.DefaultDays)
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "ledger.yaml", `
server:
  addr: ":9090"
storage:
  driver: postgres
  postgres_dsn: postgres://ledger@localhost/ledger?sslmode=disable
ledger:
  lock_timeout: 750ms
  verify_writes: false
kafka:
  enabled: true
  brokers: ["k1:9092", "k2:9092"]
log:
  level: debug
  format: json
feed:
  default_limit: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, 750*time.Millisecond, cfg.Ledger.LockTimeout)
	assert.False(t, cfg.Ledger.Verify())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 10, cfg.Feed.DefaultLimit, "zeroed values fall back to defaults")
	assert.Equal(t, 100, cfg.Log.MaxSizeMB)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")

	_, err = Load(writeFile(t, "bad.yaml", "server: [unclosed"))
	assert.ErrorContains(t, err, "tried YAML and JSON")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LEDGER_ADDR", ":7000")
	t.Setenv("LEDGER_KAFKA_BROKERS", " k1:9092, ,k2:9092")
	t.Setenv("LEDGER_LOCK_TIMEOUT", "3s")
	t.Setenv("LEDGER_LOG_LEVEL", "warn")

	cfg, err := Load(writeFile(t, "ledger.yaml", "server:\n  addr: \":9090\"\n"))
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3*time.Second, cfg.Ledger.LockTimeout)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestEnvBadDuration(t *testing.T) {
	t.Setenv("LEDGER_LOCK_TIMEOUT", "soon")

	_, err := Load("")
	assert.ErrorContains(t, err, "LEDGER_LOCK_TIMEOUT")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown driver", func(c *Config) { c.Storage.Driver = "sqlite" }, "storage.driver"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }, "postgres_dsn"},
		{"negative timeout", func(c *Config) { c.Ledger.LockTimeout = -time.Second }, "lock_timeout"},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }, "kafka.brokers"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"negative feed days", func(c *Config) { c.Feed.DefaultDays = -1 }, "feed defaults"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
	assert.NoError(t, Default().Validate())
}
