package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	refstrings "refnet/pkg/platform/strings"
)

// Storage backends selectable with STORAGE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Server captures process level configuration.
type Server struct {
	Addr       string `env:"REFNET_ADDR" envDefault:":8080"`
	AdminToken string `env:"ADMIN_API_TOKEN"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	Backend    string `env:"STORAGE_BACKEND" envDefault:"memory"`

	// RankTablePath points at a YAML rank table; empty uses the built-in table.
	RankTablePath string `env:"RANK_TABLE_PATH"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
	Codes    CodesConfig
	Workers  WorkersConfig
	Retry    RetryConfig
	Tracing  TracingConfig
	Limits   RateLimitConfig
}

// RedisConfig configures the Redis projection store.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"50"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"5"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// PostgresConfig configures the Postgres projection store.
type PostgresConfig struct {
	DSN             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
}

// KafkaConfig enables publishing promotion events. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers           []string `env:"KAFKA_BROKERS" envSeparator:","`
	PromotionTopic    string   `env:"KAFKA_PROMOTION_TOPIC" envDefault:"refnet.promotions"`
	Partitions        int32    `env:"KAFKA_TOPIC_PARTITIONS" envDefault:"3"`
	ReplicationFactor int16    `env:"KAFKA_TOPIC_REPLICATION" envDefault:"1"`
}

// CodesConfig shapes the referral code space.
type CodesConfig struct {
	Prefix      string `env:"CODE_PREFIX" envDefault:"TL"`
	Length      int    `env:"CODE_LENGTH" envDefault:"6"`
	MaxAttempts int    `env:"CODE_MAX_ATTEMPTS" envDefault:"8"`
	// AlertUtilization is the population/capacity ratio above which the
	// issuer logs an operator warning on every reservation.
	AlertUtilization float64 `env:"CODE_ALERT_UTILIZATION" envDefault:"0.01"`
}

// WorkersConfig sizes the join worker pool.
type WorkersConfig struct {
	Count      int `env:"JOIN_WORKERS" envDefault:"16"`
	QueueDepth int `env:"JOIN_QUEUE_DEPTH" envDefault:"1024"`
}

// RetryConfig bounds asynchronous aggregation/promotion retries.
type RetryConfig struct {
	Workers         int           `env:"RETRY_WORKERS" envDefault:"4"`
	QueueDepth      int           `env:"RETRY_QUEUE_DEPTH" envDefault:"4096"`
	InitialInterval time.Duration `env:"RETRY_INITIAL_INTERVAL" envDefault:"50ms"`
	MaxInterval     time.Duration `env:"RETRY_MAX_INTERVAL" envDefault:"5s"`
	MaxElapsed      time.Duration `env:"RETRY_MAX_ELAPSED" envDefault:"1m"`
}

// RateLimitConfig throttles joins per client address. A zero limit
// disables throttling.
type RateLimitConfig struct {
	JoinsPerWindow int           `env:"JOIN_RATE_LIMIT" envDefault:"30"`
	Window         time.Duration `env:"JOIN_RATE_WINDOW" envDefault:"1m"`
}

// TracingConfig enables OTLP span export. Empty Endpoint disables it.
type TracingConfig struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"true"`
	Endpoint    string `env:"OTEL_ENDPOINT"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"refnet"`
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Kafka.Brokers = refstrings.DedupeAndTrim(cfg.Kafka.Brokers)
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects combinations that cannot start.
func (s Server) Validate() error {
	switch s.Backend {
	case BackendMemory:
	case BackendRedis:
		if s.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis backend")
		}
	case BackendPostgres:
		if s.Postgres.DSN == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", s.Backend)
	}
	if s.Codes.Length < 4 {
		return fmt.Errorf("CODE_LENGTH must be at least 4, got %d", s.Codes.Length)
	}
	if s.Codes.MaxAttempts < 1 {
		return fmt.Errorf("CODE_MAX_ATTEMPTS must be positive")
	}
	if s.Workers.Count < 1 {
		return fmt.Errorf("JOIN_WORKERS must be positive")
	}
	return nil
}
