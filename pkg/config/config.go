// Package config loads and validates the engine's configuration record.
package config

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/orderstream-io/orderstream/pkg/fault"
)

// Config is the full configuration record. Values load from a YAML file
// with environment variable overrides.
type Config struct {
	Storage        Storage        `yaml:"storage"`
	Broker         Broker         `yaml:"broker"`
	Retry          Retry          `yaml:"retry"`
	CircuitBreaker CircuitBreaker `yaml:"circuit_breaker"`
	DLQ            DLQ            `yaml:"dlq"`
	CDC            CDC            `yaml:"cdc"`
	Metrics        Metrics        `yaml:"metrics"`
	Supervision    Supervision    `yaml:"supervision"`
}

// Storage configures the wide-column store connection.
type Storage struct {
	ContactPoints []string `yaml:"contact_points" env:"STORAGE_CONTACT_POINTS" env-separator:"," env-default:"127.0.0.1:9042"`
	Keyspace      string   `yaml:"keyspace" env:"STORAGE_KEYSPACE" env-default:"orderstream"`
}

// Broker configures the message broker.
type Broker struct {
	// Kind selects the publisher implementation: "kafka" or "nats".
	Kind         string   `yaml:"kind" env:"BROKER_KIND" env-default:"kafka"`
	Brokers      []string `yaml:"brokers" env:"BROKER_BROKERS" env-separator:"," env-default:"127.0.0.1:9092"`
	DefaultTopic string   `yaml:"default_topic" env:"BROKER_DEFAULT_TOPIC" env-default:"events"`
}

// Retry configures the publish retry profile.
type Retry struct {
	MaxAttempts    int     `yaml:"max_attempts" env:"RETRY_MAX_ATTEMPTS" env-default:"5"`
	InitialDelayMs int     `yaml:"initial_delay_ms" env:"RETRY_INITIAL_DELAY_MS" env-default:"100"`
	MaxDelayMs     int     `yaml:"max_delay_ms" env:"RETRY_MAX_DELAY_MS" env-default:"500"`
	Multiplier     float64 `yaml:"multiplier" env:"RETRY_MULTIPLIER" env-default:"2.0"`
}

// CircuitBreaker configures the broker-call breaker.
type CircuitBreaker struct {
	FailureThreshold uint32 `yaml:"failure_threshold" env:"CIRCUIT_BREAKER_FAILURE_THRESHOLD" env-default:"5"`
	TimeoutMs        int    `yaml:"timeout_ms" env:"CIRCUIT_BREAKER_TIMEOUT_MS" env-default:"30000"`
	SuccessThreshold uint32 `yaml:"success_threshold" env:"CIRCUIT_BREAKER_SUCCESS_THRESHOLD" env-default:"3"`
}

// DLQ configures the dead-letter sink.
type DLQ struct {
	MaxInsertRetries int `yaml:"max_insert_retries" env:"DLQ_MAX_INSERT_RETRIES" env-default:"3"`
}

// CDC configures the outbox change stream consumer.
type CDC struct {
	PollIntervalMs int `yaml:"poll_interval_ms" env:"CDC_POLL_INTERVAL_MS" env-default:"500"`
	DrainTimeoutMs int `yaml:"drain_timeout_ms" env:"CDC_DRAIN_TIMEOUT_MS" env-default:"5000"`
}

// Metrics configures the metrics/health HTTP surface.
type Metrics struct {
	Port int `yaml:"port" env:"METRICS_PORT" env-default:"9090"`
}

// Supervision configures the supervisor.
type Supervision struct {
	HealthTickMs int `yaml:"health_tick_ms" env:"SUPERVISION_HEALTH_TICK_MS" env-default:"30000"`
}

// Load reads the config file (when path is non-empty) and applies
// environment overrides.
func Load(path string) (*Config, error) {
	var cfg Config
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindInvalidInput, err, "load configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if len(c.Storage.ContactPoints) == 0 {
		return fault.New(fault.KindInvalidInput, "storage.contact_points must not be empty")
	}
	if c.Storage.Keyspace == "" {
		return fault.New(fault.KindInvalidInput, "storage.keyspace must not be empty")
	}
	if c.Broker.Kind != "kafka" && c.Broker.Kind != "nats" {
		return fault.New(fault.KindInvalidInput, "broker.kind must be kafka or nats, got %q", c.Broker.Kind)
	}
	if len(c.Broker.Brokers) == 0 {
		return fault.New(fault.KindInvalidInput, "broker.brokers must not be empty")
	}
	if c.Retry.MaxAttempts < 1 {
		return fault.New(fault.KindInvalidInput, "retry.max_attempts must be at least 1")
	}
	if c.Retry.Multiplier <= 1 {
		return fault.New(fault.KindInvalidInput, "retry.multiplier must be greater than 1")
	}
	if c.Metrics.Port <= 0 {
		return fault.New(fault.KindInvalidInput, "metrics.port must be positive")
	}
	return nil
}

// RetryDurations converts the retry record to durations.
func (c *Config) RetryDurations() (initial, max time.Duration) {
	return time.Duration(c.Retry.InitialDelayMs) * time.Millisecond,
		time.Duration(c.Retry.MaxDelayMs) * time.Millisecond
}
