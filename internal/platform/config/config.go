package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full runtime configuration, built once in main and
// passed down; packages never read the environment themselves.
type Config struct {
	Server     Server
	Postgres   Postgres
	Redis      Redis
	Kafka      Kafka
	Referral   Referral
	Commission Commission
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
}

// Postgres holds connection settings for the durable store.
type Postgres struct {
	URL string
}

// Redis holds connection settings for the lock/marker store.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka holds broker and topic settings for the event surface.
type Kafka struct {
	Brokers             []string
	Group               string
	UserRegisteredTopic string
	OrderCompletedTopic string
	NotifyTopic         string
}

// Referral bounds closure maintenance behavior.
type Referral struct {
	// MaxChainDepth is the single explicit bound on how deep a parent
	// chain may grow. Incremental insert and the rebuild job enforce
	// the same value; exceeding it is an integrity failure, never a
	// silent truncation.
	MaxChainDepth int
}

// Commission tunes the calculation engine.
type Commission struct {
	// LockTTL bounds how long a per-order calculation lock may be held
	// before it is considered abandoned.
	LockTTL time.Duration
	// ProcessedBy names this instance in calculation log rows.
	ProcessedBy string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr: envOr("UPLINE_ADDR", ":8080"),
		},
		Postgres: Postgres{
			URL: envOr("UPLINE_POSTGRES_URL", "postgres://localhost:5432/upline?sslmode=disable"),
		},
		Redis: Redis{
			URL:          os.Getenv("UPLINE_REDIS_URL"),
			PoolSize:     envIntOr("UPLINE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("UPLINE_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDurationOr("UPLINE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("UPLINE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("UPLINE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:             splitNonEmpty(os.Getenv("UPLINE_KAFKA_BROKERS")),
			Group:               envOr("UPLINE_KAFKA_GROUP", "upline-core"),
			UserRegisteredTopic: envOr("UPLINE_TOPIC_USER_REGISTERED", "user.registered"),
			OrderCompletedTopic: envOr("UPLINE_TOPIC_ORDER_COMPLETED", "order.completed"),
			NotifyTopic:         envOr("UPLINE_TOPIC_NOTIFY", "upline.notify"),
		},
		Referral: Referral{
			MaxChainDepth: envIntOr("UPLINE_MAX_CHAIN_DEPTH", 128),
		},
		Commission: Commission{
			LockTTL:     envDurationOr("UPLINE_CALC_LOCK_TTL", 30*time.Second),
			ProcessedBy: envOr("UPLINE_PROCESSED_BY", hostnameOr("upline")),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func hostnameOr(fallback string) string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return fallback
	}
	return name
}

func splitNonEmpty(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
