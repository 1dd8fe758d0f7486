package miner

import (
	"context"
	"fmt"
	"time"

	"github.com/mkrell/gosolo/internal/bitcoin"
	"github.com/mkrell/gosolo/internal/hints"
	"github.com/mkrell/gosolo/internal/stratum"
)

const (
	// pauseCheckInterval is how often a paused loop re-checks its state.
	pauseCheckInterval = 50 * time.Millisecond

	// jobWaitInterval bounds the idle wait when no job is queued.
	jobWaitInterval = 100 * time.Millisecond
)

// run is the mining loop. It executes only while the engine is mining and
// always works against the newest queued job.
func (e *Engine) run() {
	for {
		switch e.State() {
		case StateMining:
		case StatePaused:
			time.Sleep(pauseCheckInterval)
			continue
		default:
			return
		}

		job, ok := e.client.PopNewestJob()
		if !ok {
			select {
			case <-e.stopCh:
				return
			case <-e.client.JobReady():
			case <-time.After(jobWaitInterval):
			}
			continue
		}

		if e.cfg.MaxRotations > 0 && e.stats.rotationCount() >= e.cfg.MaxRotations {
			e.logger.Info("rotation cap reached", "max_rotations", e.cfg.MaxRotations)
			e.Stop()
			return
		}

		e.emit(Event{Type: EventJobReceived, JobID: job.JobID})
		e.mineJob(job)
	}
}

// mineJob runs one sweep against a single job: hint phase first, then the
// chunked sequential phase. A malformed job is dropped without stopping
// the session.
func (e *Engine) mineJob(job stratum.Job) {
	logger := e.logger.WithJob(job.JobID)

	nbits, err := bitcoin.ParseHexUint32(job.NBits)
	if err != nil {
		logger.WithError(err).Warn("dropping job with malformed nbits")
		return
	}
	ntime, err := bitcoin.ParseHexUint32(job.NTime)
	if err != nil {
		logger.WithError(err).Warn("dropping job with malformed ntime")
		return
	}
	target := bitcoin.TargetFromBits(nbits)

	extraNonce2 := e.nextExtraNonce2()
	coinbase, err := bitcoin.BuildCoinbase(job.Coinb1, e.client.ExtraNonce1(), extraNonce2, job.Coinb2)
	if err != nil {
		logger.WithError(err).Warn("dropping job with malformed coinbase")
		return
	}
	merkleRoot, err := bitcoin.BuildMerkleRoot(coinbase, job.MerkleBranch)
	if err != nil {
		logger.WithError(err).Warn("dropping job with malformed merkle branch")
		return
	}
	header, err := bitcoin.BuildHeader(job.Version, job.PrevHash, merkleRoot, job.NTime, job.NBits, 0)
	if err != nil {
		logger.WithError(err).Warn("dropping job with malformed header fields")
		return
	}

	if e.cfg.UseHints {
		if nonce, found := e.hintSweep(&header, target, job.PrevHash, ntime); found {
			e.handleWin(job, extraNonce2, header, target, nonce)
			return
		}
		if e.interrupted() {
			return
		}
	}

	nonce, found := e.sequentialSweep(&header, target)
	if found {
		e.handleWin(job, extraNonce2, header, target, nonce)
		return
	}
	if e.interrupted() {
		return
	}

	// Full sweep exhausted: shift the next pass into new territory.
	e.rotationOffset += e.cfg.NonceRangeSize
	rotation := e.stats.rotationComplete()
	e.emit(Event{Type: EventRotationComplete, JobID: job.JobID, Rotation: rotation})
}

// hintSweep searches a small window around each hinted nonce, checking for
// interruption between hints.
func (e *Engine) hintSweep(header *[bitcoin.HeaderSize]byte, target [32]byte, prevHash string, ntime uint32) (uint32, bool) {
	window := int64(e.cfg.HintWindow)

	for _, hint := range hints.Candidates(prevHash, ntime) {
		if e.interrupted() {
			return 0, false
		}

		lo := int64(hint) - window
		if lo < 0 {
			lo = 0
		}
		hi := int64(hint) + window
		if hi > int64(^uint32(0)) {
			hi = int64(^uint32(0))
		}

		hashes := uint64(0)
		for n := lo; n <= hi; n++ {
			nonce := uint32(n)
			bitcoin.SetNonce(header, nonce)
			hashes++
			if bitcoin.HashMeetsTarget(bitcoin.HeaderHash(*header), target) {
				e.stats.addHashes(hashes)
				return nonce, true
			}
		}
		e.stats.addHashes(hashes)
	}
	return 0, false
}

// sequentialSweep walks one nonce range in fixed-size chunks, starting at
// the current rotation offset. New jobs and state changes are observed at
// chunk granularity only.
func (e *Engine) sequentialSweep(header *[bitcoin.HeaderSize]byte, target [32]byte) (uint32, bool) {
	chunk := e.cfg.ChunkSize
	total := e.cfg.NonceRangeSize

	for done := uint32(0); done < total; {
		if e.interrupted() {
			return 0, false
		}

		remaining := total - done
		if remaining > chunk {
			remaining = chunk
		}

		for i := uint32(0); i < remaining; i++ {
			nonce := e.rotationOffset + done + i
			bitcoin.SetNonce(header, nonce)
			if bitcoin.HashMeetsTarget(bitcoin.HeaderHash(*header), target) {
				e.stats.addHashes(uint64(i) + 1)
				return nonce, true
			}
		}
		e.stats.addHashes(uint64(remaining))
		done += remaining
	}
	return 0, false
}

// interrupted reports whether the current sweep should be abandoned:
// either the engine left the mining state or a newer job is queued.
func (e *Engine) interrupted() bool {
	if e.State() != StateMining {
		return true
	}
	return e.client.HasPendingJob()
}

// handleWin records the solution, submits it once, and stops the engine.
// Solo mining halts on any qualifying block regardless of the pool's
// verdict.
func (e *Engine) handleWin(job stratum.Job, extraNonce2 string, header [bitcoin.HeaderSize]byte, target [32]byte, nonce uint32) {
	bitcoin.SetNonce(&header, nonce)
	hash := bitcoin.HeaderHash(header)
	zeros := bitcoin.LeadingZeroBits(hash)
	hashHex := fmt.Sprintf("%x", hash[:])
	nonceHex := fmt.Sprintf("%08x", nonce)

	e.stats.blockFound()
	e.stats.observeLeadingZeros(zeros)
	e.logger.LogBlockFound(job.JobID, hashHex, nonce, zeros)
	e.emit(Event{
		Type:         EventBlockFound,
		JobID:        job.JobID,
		Nonce:        nonceHex,
		BlockHash:    hashHex,
		LeadingZeros: zeros,
	})
	if e.sink != nil {
		e.sink.RecordBlockFound(job.JobID, hashHex, zeros)
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.SubmitTimeout+time.Second)
	defer cancel()

	accepted, err := e.client.Submit(ctx, e.worker, job.JobID, extraNonce2, job.NTime, nonceHex)
	switch {
	case err != nil:
		e.stats.submissionError()
		e.logger.WithError(err).Error("share submission failed", "job_id", job.JobID)
		e.emit(Event{Type: EventSubmissionError, JobID: job.JobID, Nonce: nonceHex, Error: err.Error()})
	case accepted:
		e.stats.shareAccepted()
		e.emit(Event{Type: EventShareAccepted, JobID: job.JobID, Nonce: nonceHex})
	default:
		e.stats.shareRejected()
		e.emit(Event{Type: EventShareRejected, JobID: job.JobID, Nonce: nonceHex})
	}
	if e.sink != nil {
		e.sink.RecordShare(job.JobID, nonceHex, err == nil && accepted)
	}

	e.Stop()
}

// nextExtraNonce2 returns the next counter value encoded to the pool's
// required byte length. Strictly increasing within a session.
func (e *Engine) nextExtraNonce2() string {
	counter := e.extraNonce2.Add(1)
	width := e.client.ExtraNonce2Size() * 2
	if width <= 0 {
		width = 8
	}
	return fmt.Sprintf("%0*x", width, counter)
}
