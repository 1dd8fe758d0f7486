// Package config provides configuration management for the GOSOLO mining
// engine. It handles loading configuration from environment variables with
// sensible defaults; all values are settable programmatically before the
// engine starts and are read-only once mining begins.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the global configuration for the mining engine
type Config struct {
	// Service identification
	ServiceName string
	Version     string
	Environment string

	// Pool connection
	PoolPreset     string
	PoolHost       string
	PoolPort       int
	WorkerName     string
	WorkerPassword string

	// Mining loop tuning
	NonceRangeSize uint32
	ChunkSize      uint32
	UseHints       bool
	HintWindow     uint32
	MaxRotations   uint64 // 0 means unlimited

	// Network timeouts
	ConnectTimeout  time.Duration
	ResponseTimeout time.Duration
	SubmitTimeout   time.Duration

	// Statistics
	StatsInterval time.Duration

	// Wallet storage
	WalletDir string

	// Telemetry sinks (each disabled when its endpoint is empty)
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
	RedisAddr    string
	RedisPass    string
	RedisDB      int
	KafkaBrokers []string
	KafkaTopic   string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		// Service defaults
		ServiceName: getEnv("SERVICE_NAME", "gosolo"),
		Version:     getEnv("VERSION", "dev"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Pool defaults
		PoolPreset:     getEnv("POOL_PRESET", ""),
		PoolHost:       getEnv("POOL_HOST", "solo.ckpool.org"),
		PoolPort:       getEnvInt("POOL_PORT", 3333),
		WorkerName:     getEnv("WORKER_NAME", ""),
		WorkerPassword: getEnv("WORKER_PASSWORD", "x"),

		// Mining loop defaults
		NonceRangeSize: uint32(getEnvInt("NONCE_RANGE_SIZE", 1<<22)),
		ChunkSize:      uint32(getEnvInt("CHUNK_SIZE", 10000)),
		UseHints:       getEnvBool("USE_HINTS", true),
		HintWindow:     uint32(getEnvInt("HINT_WINDOW", 500)),
		MaxRotations:   uint64(getEnvInt("MAX_ROTATIONS", 0)),

		// Timeout defaults
		ConnectTimeout:  getEnvDuration("CONNECT_TIMEOUT", 10*time.Second),
		ResponseTimeout: getEnvDuration("RESPONSE_TIMEOUT", 10*time.Second),
		SubmitTimeout:   getEnvDuration("SUBMIT_TIMEOUT", 10*time.Second),

		// Statistics defaults
		StatsInterval: getEnvDuration("STATS_INTERVAL", 5*time.Second),

		// Wallet defaults
		WalletDir: getEnv("WALLET_DIR", defaultWalletDir()),

		// Telemetry defaults (disabled unless configured)
		InfluxURL:    getEnv("INFLUX_URL", ""),
		InfluxToken:  getEnv("INFLUX_TOKEN", ""),
		InfluxOrg:    getEnv("INFLUX_ORG", "gosolo"),
		InfluxBucket: getEnv("INFLUX_BUCKET", "mining"),
		RedisAddr:    getEnv("REDIS_ADDR", ""),
		RedisPass:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:      getEnvInt("REDIS_DB", 0),
		KafkaBrokers: getEnvSlice("KAFKA_BROKERS", nil),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "miner.events"),

		// Logging defaults
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate performs basic validation of configuration values
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("SERVICE_NAME cannot be empty")
	}

	if c.PoolHost == "" {
		return fmt.Errorf("POOL_HOST cannot be empty")
	}

	if c.PoolPort <= 0 || c.PoolPort > 65535 {
		return fmt.Errorf("POOL_PORT must be between 1 and 65535")
	}

	if c.NonceRangeSize == 0 {
		return fmt.Errorf("NONCE_RANGE_SIZE must be positive")
	}

	if c.ChunkSize == 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive")
	}

	if c.ChunkSize > c.NonceRangeSize {
		return fmt.Errorf("CHUNK_SIZE must not exceed NONCE_RANGE_SIZE")
	}

	if c.ConnectTimeout <= 0 || c.ResponseTimeout <= 0 || c.SubmitTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}

	if c.StatsInterval <= 0 {
		return fmt.Errorf("STATS_INTERVAL must be positive")
	}

	return nil
}

// defaultWalletDir places the wallet under the user's home directory,
// falling back to the working directory when home is unavailable.
func defaultWalletDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gosolo"
	}
	return filepath.Join(home, ".gosolo")
}

// Environment variable helpers

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
