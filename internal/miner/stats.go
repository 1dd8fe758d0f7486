package miner

import (
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of mining statistics. Hashrate is
// derived at snapshot time from total hashes over elapsed seconds, never
// stored independently.
type Stats struct {
	TotalHashes      uint64    `json:"totalHashes"`
	Hashrate         float64   `json:"hashrate"`
	Rotations        uint64    `json:"rotations"`
	BestLeadingZeros int       `json:"bestLeadingZeros"`
	SharesAccepted   uint64    `json:"sharesAccepted"`
	SharesRejected   uint64    `json:"sharesRejected"`
	BlocksFound      uint64    `json:"blocksFound"`
	SubmissionErrors uint64    `json:"submissionErrors"`
	StartedAt        time.Time `json:"startedAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// statsTracker accumulates counters from the mining loop and submission
// results. All methods are safe for concurrent use.
type statsTracker struct {
	mu sync.Mutex

	totalHashes      uint64
	rotations        uint64
	bestLeadingZeros int
	sharesAccepted   uint64
	sharesRejected   uint64
	blocksFound      uint64
	submissionErrors uint64
	startedAt        time.Time
	updatedAt        time.Time
}

func newStatsTracker() *statsTracker {
	return &statsTracker{}
}

// start marks the beginning of a mining run. Counters are not reset:
// resets happen only through an explicit Reset.
func (s *statsTracker) start(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		s.startedAt = now
	}
	s.updatedAt = now
}

func (s *statsTracker) addHashes(n uint64) {
	s.mu.Lock()
	s.totalHashes += n
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

func (s *statsTracker) rotationComplete() uint64 {
	s.mu.Lock()
	s.rotations++
	r := s.rotations
	s.updatedAt = time.Now()
	s.mu.Unlock()
	return r
}

func (s *statsTracker) rotationCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotations
}

// observeLeadingZeros keeps the best (highest) leading-zero count seen.
func (s *statsTracker) observeLeadingZeros(zeros int) {
	s.mu.Lock()
	if zeros > s.bestLeadingZeros {
		s.bestLeadingZeros = zeros
	}
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

func (s *statsTracker) blockFound() {
	s.mu.Lock()
	s.blocksFound++
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

func (s *statsTracker) shareAccepted() {
	s.mu.Lock()
	s.sharesAccepted++
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

func (s *statsTracker) shareRejected() {
	s.mu.Lock()
	s.sharesRejected++
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

// submissionError counts a share whose verdict never arrived: rejected
// plus a distinct error counter.
func (s *statsTracker) submissionError() {
	s.mu.Lock()
	s.sharesRejected++
	s.submissionErrors++
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

// snapshot returns a copy with the hashrate derived from elapsed time.
func (s *statsTracker) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		TotalHashes:      s.totalHashes,
		Rotations:        s.rotations,
		BestLeadingZeros: s.bestLeadingZeros,
		SharesAccepted:   s.sharesAccepted,
		SharesRejected:   s.sharesRejected,
		BlocksFound:      s.blocksFound,
		SubmissionErrors: s.submissionErrors,
		StartedAt:        s.startedAt,
		UpdatedAt:        s.updatedAt,
	}

	if !s.startedAt.IsZero() {
		if elapsed := time.Since(s.startedAt).Seconds(); elapsed > 0 {
			stats.Hashrate = float64(s.totalHashes) / elapsed
		}
	}
	return stats
}

// reset clears all counters and timestamps.
func (s *statsTracker) reset() {
	s.mu.Lock()
	s.totalHashes = 0
	s.rotations = 0
	s.bestLeadingZeros = 0
	s.sharesAccepted = 0
	s.sharesRejected = 0
	s.blocksFound = 0
	s.submissionErrors = 0
	s.startedAt = time.Time{}
	s.updatedAt = time.Time{}
	s.mu.Unlock()
}
