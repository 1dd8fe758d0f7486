package telemetry

import (
	"context"
	"testing"

	"github.com/mkrell/gosolo/internal/miner"
	"github.com/mkrell/gosolo/pkg/log"
)

var _ miner.Sink = (*Sink)(nil)

func TestSink_NilBackendsAreNoOps(t *testing.T) {
	logger := log.New("gosolo-test", "test", "error", "text")
	sink := NewSink(nil, nil, logger)

	// None of these may panic or error without backends
	sink.RecordHashrate(miner.Stats{TotalHashes: 100, Hashrate: 10})
	sink.RecordShare("job-1", "00000001", true)
	sink.RecordBlockFound("job-1", "00ab", 12)

	if err := sink.PersistStats(context.Background(), miner.Stats{}); err != nil {
		t.Errorf("PersistStats without redis should be a no-op, got %v", err)
	}

	stats, err := sink.LifetimeStats(context.Background())
	if err != nil {
		t.Errorf("LifetimeStats without redis should be a no-op, got %v", err)
	}
	if stats != nil {
		t.Error("LifetimeStats without redis should return nil")
	}

	sink.Close()
}
