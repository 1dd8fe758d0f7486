package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkrell/gosolo/internal/miner"
)

// statsKey is where lifetime mining statistics live in Redis.
const statsKey = "gosolo:stats"

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisClient persists lifetime mining statistics across engine runs
type RedisClient struct {
	rdb *redis.Client
}

// NewRedisClient creates a Redis client and verifies connectivity
func NewRedisClient(cfg *RedisConfig) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisClient{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *RedisClient) Close() error {
	return c.rdb.Close()
}

// Health checks Redis connectivity
func (c *RedisClient) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SaveStats merges a run's counters into the lifetime snapshot and stores
// it. Counters accumulate across runs; best leading zeros keeps its max.
func (c *RedisClient) SaveStats(ctx context.Context, stats miner.Stats) error {
	lifetime, err := c.LoadStats(ctx)
	if err != nil {
		return err
	}

	if lifetime != nil {
		stats.TotalHashes += lifetime.TotalHashes
		stats.Rotations += lifetime.Rotations
		stats.SharesAccepted += lifetime.SharesAccepted
		stats.SharesRejected += lifetime.SharesRejected
		stats.BlocksFound += lifetime.BlocksFound
		stats.SubmissionErrors += lifetime.SubmissionErrors
		if lifetime.BestLeadingZeros > stats.BestLeadingZeros {
			stats.BestLeadingZeros = lifetime.BestLeadingZeros
		}
		if !lifetime.StartedAt.IsZero() {
			stats.StartedAt = lifetime.StartedAt
		}
	}
	stats.Hashrate = 0 // derived per run, meaningless across runs
	stats.UpdatedAt = time.Now()

	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	if err := c.rdb.Set(ctx, statsKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}

// LoadStats returns the lifetime snapshot, or nil when none is stored.
func (c *RedisClient) LoadStats(ctx context.Context) (*miner.Stats, error) {
	data, err := c.rdb.Get(ctx, statsKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}

	var stats miner.Stats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stats: %w", err)
	}
	return &stats, nil
}
