// Package miner contains the orchestrator that owns the engine lifecycle:
// wallet bootstrap, the Stratum session, the nonce-search loop, statistics,
// and lifecycle event delivery.
package miner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mkrell/gosolo/internal/config"
	"github.com/mkrell/gosolo/internal/stratum"
	"github.com/mkrell/gosolo/internal/wallet"
	"github.com/mkrell/gosolo/pkg/errors"
	"github.com/mkrell/gosolo/pkg/log"
)

// State is the engine lifecycle state, readable atomically from both the
// network and mining goroutines.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateMining
	StatePaused
	StateError
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateMining:
		return "mining"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Sink receives mining telemetry. Implementations must not block: the
// engine calls them from the stats ticker and the submission path.
type Sink interface {
	RecordHashrate(stats Stats)
	RecordShare(jobID, nonce string, accepted bool)
	RecordBlockFound(jobID, blockHash string, leadingZeros int)
	PersistStats(ctx context.Context, stats Stats) error
}

// Engine is the mining orchestrator. One engine owns at most one Stratum
// session and one mining loop at a time.
type Engine struct {
	cfg     *config.Config
	logger  *log.Logger
	wallets *wallet.Manager
	sink    Sink

	client *stratum.Client
	wal    *wallet.Wallet
	worker string

	state  atomic.Int32
	stats  *statsTracker
	events chan Event

	// extraNonce2 strictly increases per session and is never reused.
	extraNonce2 atomic.Uint64

	// rotationOffset shifts the sequential sweep window each full pass.
	rotationOffset uint32

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewEngine creates an idle engine. Start begins mining.
func NewEngine(cfg *config.Config, logger *log.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		logger:  logger.WithComponent("miner"),
		wallets: wallet.NewManager(cfg.WalletDir, logger),
		stats:   newStatsTracker(),
		events:  make(chan Event, eventQueueSize),
		stopCh:  make(chan struct{}),
	}
}

// SetSink attaches an optional telemetry sink. Must be called before Start.
func (e *Engine) SetSink(s Sink) {
	e.sink = s
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Events delivers lifecycle events. The channel is never closed; consumers
// should also watch Done.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Done is closed when the engine stops for any reason.
func (e *Engine) Done() <-chan struct{} {
	return e.stopCh
}

// Wallet returns the active wallet after a successful Start.
func (e *Engine) Wallet() *wallet.Wallet {
	return e.wal
}

// Snapshot returns current statistics with a derived hashrate.
func (e *Engine) Snapshot() Stats {
	return e.stats.snapshot()
}

// ResetStats clears all counters. Statistics are never reset implicitly.
func (e *Engine) ResetStats() {
	e.stats.reset()
}

// Start bootstraps the wallet, opens the Stratum session, subscribes and
// authorizes, then launches the mining loop. Any failure transitions the
// engine to the error state with no side effects on statistics.
func (e *Engine) Start(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return errors.New(errors.ErrorTypeValidation, "engine_start",
			"engine has already been started").
			WithContext("state", e.State().String())
	}
	e.emit(Event{Type: EventStateChanged, State: StateConnecting.String()})

	w, err := e.wallets.GetOrCreate()
	if err != nil {
		return e.failStart(errors.Wrap(err, errors.ErrorTypeWallet, "engine_start",
			"wallet bootstrap failed"))
	}
	e.wal = w

	e.worker = e.cfg.WorkerName
	if e.worker == "" {
		// Solo pools credit work by payout address
		e.worker = w.Address
	}

	client := stratum.NewClient(stratum.Config{
		Host:            e.cfg.PoolHost,
		Port:            e.cfg.PoolPort,
		ConnectTimeout:  e.cfg.ConnectTimeout,
		ResponseTimeout: e.cfg.ResponseTimeout,
		SubmitTimeout:   e.cfg.SubmitTimeout,
	}, e.logger)
	e.client = client

	if err := client.Connect(ctx); err != nil {
		return e.failStart(err)
	}
	if err := client.Subscribe(ctx); err != nil {
		client.Close()
		return e.failStart(err)
	}
	if err := client.Authorize(ctx, e.worker, e.cfg.WorkerPassword); err != nil {
		client.Close()
		return e.failStart(err)
	}

	e.stats.start(time.Now())
	e.setState(StateMining)

	go e.run()
	go e.watchSession()
	go e.watchDifficulty()
	go e.statsLoop()

	e.logger.Info("engine started",
		"worker", e.worker,
		"address", w.Address,
		"use_hints", e.cfg.UseHints,
	)
	return nil
}

// Pause suspends hashing while keeping the Stratum session alive. No-op
// unless the engine is mining.
func (e *Engine) Pause() {
	if e.state.CompareAndSwap(int32(StateMining), int32(StatePaused)) {
		e.emit(Event{Type: EventStateChanged, State: StatePaused.String()})
		e.logger.Info("mining paused")
	}
}

// Resume continues hashing against the latest job. No-op unless paused.
func (e *Engine) Resume() {
	if e.state.CompareAndSwap(int32(StatePaused), int32(StateMining)) {
		e.emit(Event{Type: EventStateChanged, State: StateMining.String()})
		e.logger.Info("mining resumed")
	}
}

// Stop halts the loop, closes the Stratum session, and returns a final
// statistics snapshot. Valid from any non-idle state; safe to call more
// than once.
func (e *Engine) Stop() Stats {
	if e.State() == StateIdle {
		return e.stats.snapshot()
	}

	e.stopOnce.Do(func() {
		e.setState(StateStopped)
		if e.client != nil {
			e.client.Close()
		}
		close(e.stopCh)

		stats := e.stats.snapshot()
		e.emit(Event{Type: EventStopped, Stats: &stats})
		e.logger.Info("engine stopped",
			"total_hashes", stats.TotalHashes,
			"rotations", stats.Rotations,
			"blocks_found", stats.BlocksFound,
		)

		if e.sink != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := e.sink.PersistStats(ctx, stats); err != nil {
				e.logger.WithError(err).Warn("failed to persist final stats")
			}
		}
	})
	return e.stats.snapshot()
}

// failStart records a startup failure: error state, no stats touched.
func (e *Engine) failStart(err error) error {
	e.setState(StateError)
	e.logger.WithError(err).Error("engine start failed")
	return err
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	e.emit(Event{Type: EventStateChanged, State: s.String()})
}

// watchSession treats session loss as fatal: no auto-reconnect, restart is
// an explicit operation.
func (e *Engine) watchSession() {
	select {
	case <-e.stopCh:
	case <-e.client.Done():
		if s := e.State(); s == StateMining || s == StatePaused {
			e.setState(StateError)
			e.logger.Error("pool session lost")
		}
	}
}

func (e *Engine) watchDifficulty() {
	for {
		select {
		case <-e.stopCh:
			return
		case d := <-e.client.DifficultyUpdates():
			e.emit(Event{Type: EventDifficultyChanged, Difficulty: d})
			e.logger.Info("difficulty changed", "difficulty", d)
		}
	}
}

// statsLoop refreshes derived statistics on a fixed interval, independent
// of sweep progress.
func (e *Engine) statsLoop() {
	ticker := time.NewTicker(e.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			stats := e.stats.snapshot()
			e.logger.LogHashrate(stats.TotalHashes, stats.Hashrate, stats.Rotations)
			if e.sink != nil {
				e.sink.RecordHashrate(stats)
			}
		}
	}
}
