package miner

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/mkrell/gosolo/internal/config"
	"github.com/mkrell/gosolo/internal/stratum"
	"github.com/mkrell/gosolo/pkg/errors"
	"github.com/mkrell/gosolo/pkg/log"
)

// submitRecord captures one mining.submit seen by the fake pool.
type submitRecord struct {
	Worker      string
	JobID       string
	ExtraNonce2 string
	NTime       string
	Nonce       string
}

// fakePool is a minimal in-process Stratum server for engine tests.
type fakePool struct {
	t  *testing.T
	ln net.Listener

	mu          sync.Mutex
	conn        net.Conn
	authorizeOK bool
	submits     []submitRecord

	connReady chan struct{}
}

func newFakePool(t *testing.T) *fakePool {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	p := &fakePool{
		t:           t,
		ln:          ln,
		authorizeOK: true,
		connReady:   make(chan struct{}),
	}

	go p.acceptLoop()
	t.Cleanup(p.close)
	return p
}

func (p *fakePool) acceptLoop() {
	conn, err := p.ln.Accept()
	if err != nil {
		return
	}

	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	close(p.connReady)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var msg stratum.Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}

		switch msg.Method {
		case stratum.MethodSubscribe:
			p.reply(msg.ID, []any{[]any{}, "aabbccdd", 4.0})
		case stratum.MethodAuthorize:
			p.mu.Lock()
			ok := p.authorizeOK
			p.mu.Unlock()
			p.reply(msg.ID, ok)
		case stratum.MethodSubmit:
			rec := submitRecord{}
			if len(msg.Params) == 5 {
				rec.Worker, _ = msg.Params[0].(string)
				rec.JobID, _ = msg.Params[1].(string)
				rec.ExtraNonce2, _ = msg.Params[2].(string)
				rec.NTime, _ = msg.Params[3].(string)
				rec.Nonce, _ = msg.Params[4].(string)
			}
			p.mu.Lock()
			p.submits = append(p.submits, rec)
			p.mu.Unlock()
			p.reply(msg.ID, true)
		}
	}
}

func (p *fakePool) reply(id, result any) {
	p.writeLine(map[string]any{"id": id, "result": result, "error": nil})
}

// notify pushes a job. An nbits of 20ffffff makes virtually every hash
// qualify; 1d00ffff is real mainnet-era difficulty that never hits.
func (p *fakePool) notify(jobID, nbits string, cleanJobs bool) {
	p.writeLine(map[string]any{
		"id":     nil,
		"method": stratum.MethodNotify,
		"params": []any{
			jobID,
			"00000000000000000002d13cbf7022d2b1a1c4e5f60718293a4b5c6d7e8f9011",
			"01000000010000",
			"ffffffff0100f2",
			[]any{},
			"20000000",
			nbits,
			"6581b5a0",
			cleanJobs,
		},
	})
}

func (p *fakePool) writeLine(v any) {
	<-p.connReady

	data, err := json.Marshal(v)
	if err != nil {
		p.t.Errorf("fake pool marshal: %v", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return
	}
	if _, err := p.conn.Write(append(data, '\n')); err != nil {
		p.t.Logf("fake pool write: %v", err)
	}
}

func (p *fakePool) setAuthorizeOK(ok bool) {
	p.mu.Lock()
	p.authorizeOK = ok
	p.mu.Unlock()
}

func (p *fakePool) submitted() []submitRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]submitRecord, len(p.submits))
	copy(out, p.submits)
	return out
}

func (p *fakePool) close() {
	_ = p.ln.Close()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

func (p *fakePool) endpoint() (string, int) {
	addr := p.ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func testConfig(t *testing.T, p *fakePool) *config.Config {
	t.Helper()

	host, port := p.endpoint()
	return &config.Config{
		ServiceName:     "gosolo-test",
		PoolHost:        host,
		PoolPort:        port,
		WorkerName:      "tester",
		WorkerPassword:  "x",
		NonceRangeSize:  1 << 20,
		ChunkSize:       1000,
		UseHints:        false,
		HintWindow:      500,
		ConnectTimeout:  2 * time.Second,
		ResponseTimeout: 2 * time.Second,
		SubmitTimeout:   2 * time.Second,
		StatsInterval:   time.Hour,
		WalletDir:       t.TempDir(),
	}
}

func newTestEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()

	logger := log.New("gosolo-test", "test", "error", "text")
	engine := NewEngine(cfg, logger)
	t.Cleanup(func() { engine.Stop() })
	return engine
}

func startEngine(t *testing.T, engine *Engine) {
	t.Helper()
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

// awaitEvent drains the event stream until the wanted type appears.
func awaitEvent(t *testing.T, engine *Engine, typ EventType, timeout time.Duration) Event {
	t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case ev := <-engine.Events():
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", typ)
		}
	}
}

func TestEngine_EasyTargetSubmitsExactlyOnce(t *testing.T) {
	pool := newFakePool(t)
	cfg := testConfig(t, pool)
	engine := newTestEngine(t, cfg)
	startEngine(t, engine)

	pool.notify("job-easy", "20ffffff", false)

	found := awaitEvent(t, engine, EventBlockFound, 10*time.Second)
	if found.JobID != "job-easy" {
		t.Errorf("block found for job %q, want job-easy", found.JobID)
	}
	if found.Nonce != "00000000" {
		t.Errorf("winning nonce = %q, want 00000000 on the first sweep", found.Nonce)
	}

	awaitEvent(t, engine, EventStopped, 10*time.Second)

	select {
	case <-engine.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop after finding a block")
	}
	if engine.State() != StateStopped {
		t.Errorf("state = %s, want stopped", engine.State())
	}

	submits := pool.submitted()
	if len(submits) != 1 {
		t.Fatalf("pool saw %d submissions, want exactly 1", len(submits))
	}
	sub := submits[0]
	if sub.JobID != "job-easy" || sub.Worker != "tester" {
		t.Errorf("submission = %+v", sub)
	}
	if sub.ExtraNonce2 != "00000001" {
		t.Errorf("extraNonce2 = %q, want 00000001 for the first sweep", sub.ExtraNonce2)
	}
	if sub.Nonce != "00000000" {
		t.Errorf("submitted nonce = %q, want 00000000", sub.Nonce)
	}
	if sub.NTime != "6581b5a0" {
		t.Errorf("submitted ntime = %q, want the job's ntime", sub.NTime)
	}

	stats := engine.Snapshot()
	if stats.BlocksFound != 1 {
		t.Errorf("BlocksFound = %d, want 1", stats.BlocksFound)
	}
	if stats.SharesAccepted != 1 {
		t.Errorf("SharesAccepted = %d, want 1", stats.SharesAccepted)
	}
	if stats.TotalHashes == 0 {
		t.Error("TotalHashes should be nonzero after a sweep")
	}
}

func TestEngine_CleanJobAbortsStaleSweep(t *testing.T) {
	pool := newFakePool(t)
	cfg := testConfig(t, pool)
	engine := newTestEngine(t, cfg)
	startEngine(t, engine)

	pool.notify("job-stale", "1d00ffff", false)
	awaitEvent(t, engine, EventJobReceived, 5*time.Second)

	// Interrupt the sweep with a clean job
	pool.notify("job-fresh", "1d00ffff", true)

	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-engine.Events():
			if ev.Type == EventJobReceived && ev.JobID == "job-fresh" {
				if n := len(pool.submitted()); n != 0 {
					t.Errorf("pool saw %d submissions for an unfinished sweep, want 0", n)
				}
				return
			}
		case <-deadline:
			t.Fatal("engine never picked up the clean job")
		}
	}
}

func TestEngine_StopReturnsMonotonicRotations(t *testing.T) {
	pool := newFakePool(t)
	cfg := testConfig(t, pool)
	cfg.NonceRangeSize = 2000
	cfg.ChunkSize = 500
	engine := newTestEngine(t, cfg)
	startEngine(t, engine)

	var last uint64
	for i := 0; i < 3; i++ {
		pool.notify("job-sweep", "1d00ffff", false)
		ev := awaitEvent(t, engine, EventRotationComplete, 10*time.Second)
		if ev.Rotation < last {
			t.Errorf("rotation went backwards: %d after %d", ev.Rotation, last)
		}
		last = ev.Rotation
	}

	stats := engine.Stop()
	if stats.Rotations < last {
		t.Errorf("final rotations = %d, below observed %d", stats.Rotations, last)
	}
	if engine.State() != StateStopped {
		t.Errorf("state = %s, want stopped", engine.State())
	}

	select {
	case <-engine.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after Stop")
	}

	// Stop is idempotent and never loses counters
	again := engine.Stop()
	if again.Rotations < stats.Rotations {
		t.Errorf("second Stop reported %d rotations, below %d", again.Rotations, stats.Rotations)
	}
}

func TestEngine_RotationCapStopsEngine(t *testing.T) {
	pool := newFakePool(t)
	cfg := testConfig(t, pool)
	cfg.NonceRangeSize = 1000
	cfg.ChunkSize = 500
	cfg.MaxRotations = 2
	engine := newTestEngine(t, cfg)
	startEngine(t, engine)

	// Keep feeding jobs until the cap trips
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-engine.Done():
				return
			case <-ticker.C:
				pool.notify("job-cap", "1d00ffff", false)
			}
		}
	}()

	awaitEvent(t, engine, EventStopped, 10*time.Second)
	if engine.State() != StateStopped {
		t.Errorf("state = %s, want stopped at rotation cap", engine.State())
	}
	if stats := engine.Snapshot(); stats.Rotations < cfg.MaxRotations {
		t.Errorf("Rotations = %d, want at least %d", stats.Rotations, cfg.MaxRotations)
	}
}

func TestEngine_PauseResumeStateRules(t *testing.T) {
	t.Run("no-ops from idle", func(t *testing.T) {
		pool := newFakePool(t)
		engine := newTestEngine(t, testConfig(t, pool))

		engine.Pause()
		if engine.State() != StateIdle {
			t.Errorf("Pause from idle moved state to %s", engine.State())
		}
		engine.Resume()
		if engine.State() != StateIdle {
			t.Errorf("Resume from idle moved state to %s", engine.State())
		}
	})

	t.Run("toggles only between mining and paused", func(t *testing.T) {
		pool := newFakePool(t)
		engine := newTestEngine(t, testConfig(t, pool))
		startEngine(t, engine)

		engine.Resume()
		if engine.State() != StateMining {
			t.Errorf("Resume while mining moved state to %s", engine.State())
		}

		engine.Pause()
		if engine.State() != StatePaused {
			t.Errorf("Pause while mining gave state %s", engine.State())
		}
		engine.Pause()
		if engine.State() != StatePaused {
			t.Errorf("second Pause moved state to %s", engine.State())
		}

		engine.Resume()
		if engine.State() != StateMining {
			t.Errorf("Resume while paused gave state %s", engine.State())
		}
	})
}

func TestEngine_StartFailures(t *testing.T) {
	t.Run("connection refused", func(t *testing.T) {
		pool := newFakePool(t)
		cfg := testConfig(t, pool)
		cfg.PoolPort = 1 // nothing listens here
		engine := newTestEngine(t, cfg)

		err := engine.Start(context.Background())
		if err == nil {
			t.Fatal("expected Start to fail")
		}
		if !errors.IsType(err, errors.ErrorTypeNetwork) {
			t.Errorf("expected network error, got %v", err)
		}
		if engine.State() != StateError {
			t.Errorf("state = %s, want error", engine.State())
		}
		if stats := engine.Snapshot(); stats.TotalHashes != 0 || stats.Rotations != 0 {
			t.Error("failed start must not touch statistics")
		}
	})

	t.Run("authorization rejected", func(t *testing.T) {
		pool := newFakePool(t)
		pool.setAuthorizeOK(false)
		engine := newTestEngine(t, testConfig(t, pool))

		err := engine.Start(context.Background())
		if err == nil {
			t.Fatal("expected Start to fail")
		}
		if !errors.IsType(err, errors.ErrorTypeAuth) {
			t.Errorf("expected auth error, got %v", err)
		}
		if engine.State() != StateError {
			t.Errorf("state = %s, want error", engine.State())
		}
	})

	t.Run("double start rejected", func(t *testing.T) {
		pool := newFakePool(t)
		engine := newTestEngine(t, testConfig(t, pool))
		startEngine(t, engine)

		err := engine.Start(context.Background())
		if err == nil {
			t.Fatal("expected second Start to fail")
		}
		if !errors.IsType(err, errors.ErrorTypeValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}

func TestEngine_ExtraNonce2StrictlyIncreases(t *testing.T) {
	pool := newFakePool(t)
	engine := newTestEngine(t, testConfig(t, pool))
	startEngine(t, engine)

	prev := engine.nextExtraNonce2()
	for i := 0; i < 10; i++ {
		next := engine.nextExtraNonce2()
		if len(next) != len(prev) {
			t.Fatalf("encoded width changed: %q then %q", prev, next)
		}
		if next <= prev {
			t.Fatalf("extraNonce2 not strictly increasing: %q then %q", prev, next)
		}
		prev = next
	}
	if len(prev) != 8 {
		t.Errorf("encoded length = %d, want 8 hex chars for a 4-byte extraNonce2", len(prev))
	}
}
