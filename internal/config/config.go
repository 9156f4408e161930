// Package config loads the SuddenConnect server configuration from the
// environment. A .env file in the working directory is honored when present;
// real environment variables always win over it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable of the server process.
type Config struct {
	// Server
	ListenAddr string
	Env        string // "development" | "production"
	LogLevel   string
	ServerName string // identifies this instance in presence records

	// Matching
	QueueTimeout time.Duration // how long a participant may wait in the pool
	EventBuffer  int           // lifecycle event backlog before events are dropped

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// RateLimitEnabled turns off every rate limit when false, e.g. for load
	// tests from a single address.
	RateLimitEnabled bool

	// NATS; empty keeps session groups in-process.
	NATSURL string

	// Postgres; empty disables pairing history.
	DatabaseURL string

	// WebSocket transport
	WorkerPoolSize    int
	MaxConnections    int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	SendQueueSize     int
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

// Load reads the configuration. It returns an error only for values that are
// present but malformed; missing values fall back to defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "ws-1"
	}

	p := &parser{}
	cfg := &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
		Env:        getEnv("ENV", "development"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		ServerName: getEnv("SERVER_NAME", hostname),

		QueueTimeout: p.duration("QUEUE_TIMEOUT", 5*time.Minute),
		EventBuffer:  p.int("EVENT_BUFFER", 1024),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       p.intAtLeast("REDIS_DB", 0, 0),

		RateLimitEnabled: p.bool("RATE_LIMIT_ENABLED", true),

		NATSURL:     getEnv("NATS_URL", ""),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		WorkerPoolSize:    p.int("WORKER_POOL_SIZE", 256),
		MaxConnections:    p.int("MAX_CONNECTIONS", 100000),
		ReadTimeout:       p.duration("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:      p.duration("WRITE_TIMEOUT", 10*time.Second),
		SendQueueSize:     p.int("SEND_QUEUE_SIZE", 64),
		HeartbeatInterval: p.duration("HEARTBEAT_INTERVAL", 30*time.Second),
		HeartbeatTimeout:  p.duration("HEARTBEAT_TIMEOUT", 10*time.Second),
	}
	if p.err != nil {
		return nil, p.err
	}
	if cfg.QueueTimeout <= 0 {
		return nil, fmt.Errorf("config: QUEUE_TIMEOUT must be positive, got %s", cfg.QueueTimeout)
	}
	return cfg, nil
}

// IsProduction reports whether the process runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser remembers the first malformed value so Load can report it once.
type parser struct {
	err error
}

func (p *parser) int(key string, def int) int {
	return p.intAtLeast(key, def, 1)
}

func (p *parser) intAtLeast(key string, def, floor int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < floor {
		if p.err == nil {
			p.err = fmt.Errorf("config: %s: want an integer >= %d, got %q", key, floor, v)
		}
		return def
	}
	return n
}

func (p *parser) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("config: %s: want a boolean, got %q", key, v)
		}
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		if p.err == nil {
			p.err = fmt.Errorf("config: %s: %w", key, err)
		}
		return def
	}
	return d
}
