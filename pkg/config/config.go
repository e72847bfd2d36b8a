// Package config loads workqd's runtime configuration from environment
// variables (with optional .env support), following the teacher's
// Load()/getEnv*/helpers pattern verbatim in shape.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the complete set of tunables workqd reads at startup.
type Config struct {
	Server ServerConfig
	Heap   HeapConfig
	Events EventsConfig
}

// ServerConfig covers the listener and per-connection protocol limits.
type ServerConfig struct {
	Port             int
	MaxConnections   int
	LineBufSize      int
	URGENTThreshold  uint32
	DrainOnSIGUSR1   bool
	StatsLogInterval time.Duration
}

// HeapConfig bounds the ready and delay priority queues.
type HeapConfig struct {
	ReadyCapacity int
	DelayCapacity int
}

// EventsConfig configures the optional Kafka job-lifecycle audit
// publisher. Empty Brokers means events are disabled.
type EventsConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	Compression  string
	Async        bool
	MaxAttempts  int
	RequiredAcks int
}

// Load reads configuration from the environment, first loading a .env
// file if one is present (ignored if absent, same as the teacher).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:             getEnvAsInt("WORKQ_PORT", 11300),
			MaxConnections:   getEnvAsInt("WORKQ_MAX_CONNECTIONS", 10000),
			LineBufSize:      getEnvAsInt("WORKQ_LINE_BUF_SIZE", 8192),
			URGENTThreshold:  uint32(getEnvAsInt("WORKQ_URGENT_THRESHOLD", 1024)),
			DrainOnSIGUSR1:   getEnvAsBool("WORKQ_DRAIN_ON_SIGUSR1", true),
			StatsLogInterval: getEnvAsDuration("WORKQ_STATS_LOG_INTERVAL", 30*time.Second),
		},
		Heap: HeapConfig{
			ReadyCapacity: getEnvAsInt("WORKQ_READY_CAPACITY", 16*1024*1024),
			DelayCapacity: getEnvAsInt("WORKQ_DELAY_CAPACITY", 16*1024*1024),
		},
		Events: EventsConfig{
			Brokers:      splitNonEmpty(getEnv("EVENTS_KAFKA_BROKERS", "")),
			Topic:        getEnv("EVENTS_KAFKA_TOPIC", "workq.job.events"),
			BatchSize:    getEnvAsInt("EVENTS_KAFKA_BATCH_SIZE", 100),
			BatchTimeout: getEnvAsDuration("EVENTS_KAFKA_BATCH_TIMEOUT", 100*time.Millisecond),
			Compression:  getEnv("EVENTS_KAFKA_COMPRESSION", "snappy"),
			Async:        getEnvAsBool("EVENTS_KAFKA_ASYNC", true),
			MaxAttempts:  getEnvAsInt("EVENTS_KAFKA_MAX_ATTEMPTS", 3),
			RequiredAcks: getEnvAsInt("EVENTS_KAFKA_REQUIRED_ACKS", 1),
		},
	}

	return cfg, nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	if value, err := strconv.ParseBool(raw); err == nil {
		return value
	}
	return defaultValue
}
