package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"docrisk/internal/policy"
	dErrors "docrisk/pkg/domain-errors"
)

// Config is the full decision-core configuration.
type Config struct {
	Policy    policy.Thresholds `yaml:"policy"`
	Engine    EngineConfig      `yaml:"engine"`
	Learned   LearnedConfig     `yaml:"learned"`
	Redis     RedisConfig       `yaml:"redis"`
	Telemetry TelemetryConfig   `yaml:"telemetry"`
	Logging   LoggingConfig     `yaml:"logging"`
}

// EngineConfig tunes pipeline execution.
type EngineConfig struct {
	ParallelRules bool `yaml:"parallel_rules"`
	// AuditBuffer sizes the audit worker inbox.
	AuditBuffer int `yaml:"audit_buffer"`
	// OutboxSize bounds finalized decisions waiting for the sinks.
	OutboxSize int `yaml:"outbox_size"`
}

// LearnedConfig locates learned-rule snapshots.
type LearnedConfig struct {
	SnapshotFile string `yaml:"snapshot_file"`
	DSN          string `yaml:"dsn"`
	// Channel is the Redis pub/sub channel announcing new snapshots.
	Channel         string        `yaml:"channel"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// RedisConfig configures the Redis client used for snapshot notifications.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// TelemetryConfig configures the Kafka decision-trace sink.
type TelemetryConfig struct {
	Brokers    []string `yaml:"brokers"`
	Topic      string   `yaml:"topic"`
	ClientID   string   `yaml:"client_id"`
	Partitions int32    `yaml:"partitions"`
	// SampleRate is the share of real-labelled traces published; suspicious
	// and fake traces are always published.
	SampleRate       float64       `yaml:"sample_rate"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
	// DeliveryTimeout bounds how long a buffered trace may wait for the
	// broker, retries included.
	DeliveryTimeout    time.Duration `yaml:"delivery_timeout"`
	RecordRetries      int           `yaml:"record_retries"`
	MaxBufferedRecords int           `yaml:"max_buffered_records"`
}

// Enabled reports whether the trace sink should be started.
func (t TelemetryConfig) Enabled() bool {
	return len(t.Brokers) > 0
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | text
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Policy: policy.Default(),
		Engine: EngineConfig{
			AuditBuffer: 1024,
			OutboxSize:  256,
		},
		Learned: LearnedConfig{
			Channel:         "docrisk:learned:published",
			RefreshInterval: time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Topic:              "docrisk.decision-traces",
			ClientID:           "docrisk",
			Partitions:         3,
			SampleRate:         1.0,
			BreakerThreshold:   5,
			BreakerCooldown:    30 * time.Second,
			DeliveryTimeout:    10 * time.Second,
			RecordRetries:      3,
			MaxBufferedRecords: 10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from a YAML file layered over Default, then
// applies environment overrides and validates the result. A missing file is
// not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "parse config "+path)
		}
	}

	applyDefaults(cfg)
	applyEnv(cfg, os.Getenv)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Policy.Tier == "" {
		cfg.Policy.Tier = policy.TierStandard
	}
	if cfg.Engine.AuditBuffer == 0 {
		cfg.Engine.AuditBuffer = def.Engine.AuditBuffer
	}
	if cfg.Engine.OutboxSize == 0 {
		cfg.Engine.OutboxSize = def.Engine.OutboxSize
	}
	if cfg.Learned.Channel == "" {
		cfg.Learned.Channel = def.Learned.Channel
	}
	if cfg.Learned.RefreshInterval == 0 {
		cfg.Learned.RefreshInterval = def.Learned.RefreshInterval
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = def.Redis.PoolSize
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = def.Redis.DialTimeout
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = def.Redis.ReadTimeout
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = def.Redis.WriteTimeout
	}
	if cfg.Telemetry.Topic == "" {
		cfg.Telemetry.Topic = def.Telemetry.Topic
	}
	if cfg.Telemetry.ClientID == "" {
		cfg.Telemetry.ClientID = def.Telemetry.ClientID
	}
	if cfg.Telemetry.Partitions == 0 {
		cfg.Telemetry.Partitions = def.Telemetry.Partitions
	}
	if cfg.Telemetry.BreakerThreshold == 0 {
		cfg.Telemetry.BreakerThreshold = def.Telemetry.BreakerThreshold
	}
	if cfg.Telemetry.BreakerCooldown == 0 {
		cfg.Telemetry.BreakerCooldown = def.Telemetry.BreakerCooldown
	}
	if cfg.Telemetry.DeliveryTimeout == 0 {
		cfg.Telemetry.DeliveryTimeout = def.Telemetry.DeliveryTimeout
	}
	if cfg.Telemetry.MaxBufferedRecords == 0 {
		cfg.Telemetry.MaxBufferedRecords = def.Telemetry.MaxBufferedRecords
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("DOCRISK_ENFORCEMENT_TIER"); v != "" {
		cfg.Policy.Tier = policy.EnforcementTier(strings.ToLower(v))
	}
	if v := getenv("DOCRISK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := getenv("DOCRISK_LEARNED_DSN"); v != "" {
		cfg.Learned.DSN = v
	}
	if v := getenv("DOCRISK_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := getenv("DOCRISK_KAFKA_BROKERS"); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		cfg.Telemetry.Brokers = brokers
	}
}

// Validate checks every section, naming the offending key.
func Validate(cfg *Config) error {
	if err := cfg.Policy.Validate(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid config")
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return dErrors.Newf(dErrors.CodeInvalidInput, "logging.level %q is not one of debug|info|warn|error", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return dErrors.Newf(dErrors.CodeInvalidInput, "logging.format %q is not one of json|text", cfg.Logging.Format)
	}
	if cfg.Engine.AuditBuffer < 1 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "engine.audit_buffer must be positive, got %d", cfg.Engine.AuditBuffer)
	}
	if cfg.Engine.OutboxSize < 1 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "engine.outbox_size must be positive, got %d", cfg.Engine.OutboxSize)
	}
	if cfg.Telemetry.Enabled() && cfg.Telemetry.DeliveryTimeout <= 0 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "telemetry.delivery_timeout must be positive, got %s", cfg.Telemetry.DeliveryTimeout)
	}
	if cfg.Learned.RefreshInterval < 0 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "learned.refresh_interval must not be negative, got %s", cfg.Learned.RefreshInterval)
	}
	if cfg.Redis.URL != "" && cfg.Learned.Channel == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "learned.channel is required when redis.url is set")
	}
	if cfg.Telemetry.Enabled() && cfg.Telemetry.Topic == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "telemetry.topic is required when brokers are configured")
	}
	if cfg.Telemetry.SampleRate < 0 || cfg.Telemetry.SampleRate > 1 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "telemetry.sample_rate must be within [0,1], got %v", cfg.Telemetry.SampleRate)
	}
	return nil
}

// WithURL returns a copy of r pointing at url.
func (r RedisConfig) WithURL(url string) RedisConfig {
	r.URL = url
	return r
}
