package telemetry

import (
	"context"
	"time"

	"github.com/mkrell/gosolo/internal/miner"
	"github.com/mkrell/gosolo/pkg/circuit"
	"github.com/mkrell/gosolo/pkg/errors"
	"github.com/mkrell/gosolo/pkg/log"
	"github.com/mkrell/gosolo/pkg/retry"
)

// Sink fans engine telemetry out to whichever backends are configured.
// It implements miner.Sink. A nil backend is skipped; Redis writes go
// through the circuit breaker and retry so a flapping instance never
// stalls the engine.
type Sink struct {
	influx *InfluxClient
	redis  *RedisClient
	logger *log.Logger

	breaker  *circuit.Breaker
	retryCfg *retry.Config
}

// NewSink creates a telemetry sink over the given backends. Either backend
// may be nil.
func NewSink(influx *InfluxClient, redis *RedisClient, logger *log.Logger) *Sink {
	return &Sink{
		influx: influx,
		redis:  redis,
		logger: logger.WithComponent("telemetry"),
		breaker: circuit.New(&circuit.Config{
			MaxFailures:     5,
			SuccessRequired: 2,
			Timeout:         15 * time.Second,
			ResetTimeout:    60 * time.Second,
		}),
		retryCfg: retry.TelemetryConfig(),
	}
}

// RecordHashrate writes a hashrate point. Influx writes are asynchronous
// and never block the caller.
func (s *Sink) RecordHashrate(stats miner.Stats) {
	if s.influx == nil {
		return
	}
	s.influx.WriteHashrate(stats.TotalHashes, stats.Hashrate, stats.Rotations)
}

// RecordShare writes a share verdict point.
func (s *Sink) RecordShare(jobID, nonce string, accepted bool) {
	if s.influx == nil {
		return
	}
	s.influx.WriteShare(jobID, nonce, accepted)
}

// RecordBlockFound writes a block discovery point.
func (s *Sink) RecordBlockFound(jobID, blockHash string, leadingZeros int) {
	if s.influx == nil {
		return
	}
	s.influx.WriteBlockFound(jobID, blockHash, leadingZeros)
}

// PersistStats merges the run's counters into the lifetime snapshot in
// Redis.
func (s *Sink) PersistStats(ctx context.Context, stats miner.Stats) error {
	if s.redis == nil {
		return nil
	}

	return s.breaker.Execute(ctx, func() error {
		return retry.Do(ctx, s.retryCfg, func() error {
			if err := s.redis.SaveStats(ctx, stats); err != nil {
				return errors.Wrap(err, errors.ErrorTypeTelemetry, "persist_stats",
					"failed to persist lifetime stats")
			}
			return nil
		})
	})
}

// LifetimeStats loads the persisted lifetime snapshot, if any.
func (s *Sink) LifetimeStats(ctx context.Context) (*miner.Stats, error) {
	if s.redis == nil {
		return nil, nil
	}
	return s.redis.LoadStats(ctx)
}

// Close flushes and closes the configured backends.
func (s *Sink) Close() {
	if s.influx != nil {
		s.influx.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.WithError(err).Warn("failed to close redis client")
		}
	}
}
