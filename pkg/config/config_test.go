package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orderstream-io/orderstream/pkg/config"
	"github.com/orderstream-io/orderstream/pkg/fault"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaultsFromEnvOnly(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	require.Equal(t, []string{"127.0.0.1:9042"}, cfg.Storage.ContactPoints)
	require.Equal(t, "orderstream", cfg.Storage.Keyspace)
	require.Equal(t, "kafka", cfg.Broker.Kind)
	require.Equal(t, 5, cfg.Retry.MaxAttempts)
	require.Equal(t, 2.0, cfg.Retry.Multiplier)
	require.Equal(t, uint32(5), cfg.CircuitBreaker.FailureThreshold)
	require.Equal(t, 30000, cfg.CircuitBreaker.TimeoutMs)
	require.Equal(t, uint32(3), cfg.CircuitBreaker.SuccessThreshold)
	require.Equal(t, 9090, cfg.Metrics.Port)
	require.Equal(t, 30000, cfg.Supervision.HealthTickMs)

	initial, max := cfg.RetryDurations()
	require.Equal(t, 100*time.Millisecond, initial)
	require.Equal(t, 500*time.Millisecond, max)
}

func TestLoadReadsYAML(t *testing.T) {
	path := writeConfig(t, `
storage:
  contact_points:
    - "scylla-1:9042"
    - "scylla-2:9042"
  keyspace: orders_prod
broker:
  kind: nats
  brokers:
    - "nats-1:4222"
  default_topic: orders
retry:
  max_attempts: 7
  initial_delay_ms: 50
  max_delay_ms: 400
  multiplier: 1.5
metrics:
  port: 8088
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"scylla-1:9042", "scylla-2:9042"}, cfg.Storage.ContactPoints)
	require.Equal(t, "orders_prod", cfg.Storage.Keyspace)
	require.Equal(t, "nats", cfg.Broker.Kind)
	require.Equal(t, 7, cfg.Retry.MaxAttempts)
	require.Equal(t, 1.5, cfg.Retry.Multiplier)
	require.Equal(t, 8088, cfg.Metrics.Port)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  keyspace: from_file
`)
	t.Setenv("STORAGE_KEYSPACE", "from_env")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "from_env", cfg.Storage.Keyspace)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *config.Config {
		cfg, err := config.Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Storage.ContactPoints = nil
	require.Equal(t, fault.KindInvalidInput, fault.KindOf(cfg.Validate()))

	cfg = base()
	cfg.Broker.Kind = "rabbitmq"
	require.Equal(t, fault.KindInvalidInput, fault.KindOf(cfg.Validate()))

	cfg = base()
	cfg.Retry.Multiplier = 1.0
	require.Equal(t, fault.KindInvalidInput, fault.KindOf(cfg.Validate()))

	cfg = base()
	cfg.Retry.MaxAttempts = 0
	require.Equal(t, fault.KindInvalidInput, fault.KindOf(cfg.Validate()))

	cfg = base()
	cfg.Metrics.Port = 0
	require.Equal(t, fault.KindInvalidInput, fault.KindOf(cfg.Validate()))
}
