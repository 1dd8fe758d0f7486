// Package stratum implements the client side of the Stratum V1 mining
// protocol: a persistent line-delimited JSON-RPC session with
// request/response correlation, job queueing, and difficulty tracking.
package stratum

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mkrell/gosolo/pkg/errors"
	"github.com/mkrell/gosolo/pkg/log"
)

const (
	// outboundQueueSize bounds buffered outbound messages.
	outboundQueueSize = 64

	// maxLineSize bounds a single Stratum line. Jobs with long coinbase
	// fragments stay well under this.
	maxLineSize = 1 << 20

	// expireInterval is how often the pending-request table is swept for
	// expired entries.
	expireInterval = 500 * time.Millisecond
)

// Config holds Stratum client configuration
type Config struct {
	Host            string
	Port            int
	UserAgent       string
	ConnectTimeout  time.Duration
	ResponseTimeout time.Duration
	SubmitTimeout   time.Duration
}

// callResult carries a correlated server reply or a client-side failure.
type callResult struct {
	result     any
	stratumErr *Error
	err        error
}

// pendingCall is one entry in the pending-request table.
type pendingCall struct {
	method   string
	deadline time.Time
	done     chan callResult
}

// Client is a persistent Stratum session against one pool. It owns the job
// queue fed by mining.notify and the pending-request table for outbound
// calls. At most one session is active per client.
type Client struct {
	cfg    Config
	logger *log.Logger

	conn     net.Conn
	outbound chan []byte
	done     chan struct{}
	closed   sync.Once

	nextID  atomic.Uint64
	pending map[uint64]*pendingCall
	pendMu  sync.Mutex

	jobQueue []Job
	jobReady chan struct{}
	queueMu  sync.Mutex

	extraNonce1     string
	extraNonce2Size int

	difficulty  atomic.Uint64 // float64 bits
	diffUpdates chan float64
}

// NewClient creates a Stratum client for the given pool. Connect must be
// called before any protocol operation.
func NewClient(cfg Config, logger *log.Logger) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = 10 * time.Second
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "gosolo/1.0"
	}

	c := &Client{
		cfg:         cfg,
		logger:      logger.WithComponent("stratum").WithPool(cfg.Host, cfg.Port),
		outbound:    make(chan []byte, outboundQueueSize),
		done:        make(chan struct{}),
		pending:     make(map[uint64]*pendingCall),
		jobReady:    make(chan struct{}, 1),
		diffUpdates: make(chan float64, 8),
	}
	c.difficulty.Store(math.Float64bits(1.0))
	return c
}

// Connect opens the TCP session and starts the read, write, and expiry
// loops. It fails with a network error if no connection is established
// within the configured timeout.
func (c *Client) Connect(ctx context.Context) error {
	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))

	dialer := &net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeNetwork, "pool_connect",
			"failed to connect to pool").
			WithContext("addr", addr)
	}

	c.conn = conn
	c.logger.Info("connected to pool", "addr", addr)

	go c.readLoop()
	go c.writeLoop()
	go c.expireLoop()

	return nil
}

// Close tears down the session. All pending requests are failed and the
// done channel is closed. Safe to call more than once.
func (c *Client) Close() {
	c.shutdown("session closed")
}

// Done is closed when the session ends, whether by Close or by connection
// loss. The orchestrator treats this as fatal for the current session.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Subscribe sends mining.subscribe and caches the pool-assigned extraNonce1
// and the required extraNonce2 byte length.
func (c *Client) Subscribe(ctx context.Context) error {
	result, err := c.call(ctx, MethodSubscribe, []any{c.cfg.UserAgent}, c.cfg.ResponseTimeout)
	if err != nil {
		return err
	}

	sub, err := ParseSubscribeResult(result)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeProtocol, "subscribe",
			"malformed mining.subscribe reply")
	}

	c.extraNonce1 = sub.ExtraNonce1
	c.extraNonce2Size = sub.ExtraNonce2Size
	c.logger.Info("subscribed",
		"extranonce1", sub.ExtraNonce1,
		"extranonce2_size", sub.ExtraNonce2Size,
	)
	return nil
}

// Authorize sends mining.authorize. A rejected or failed authorization is
// fatal to startup.
func (c *Client) Authorize(ctx context.Context, user, pass string) error {
	result, err := c.call(ctx, MethodAuthorize, []any{user, pass}, c.cfg.ResponseTimeout)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeAuth, "authorize",
			"authorization request failed").
			WithContext("user", user)
	}

	accepted, err := ParseBoolResult(result)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeProtocol, "authorize",
			"malformed mining.authorize reply")
	}
	if !accepted {
		return errors.New(errors.ErrorTypeAuth, "authorize",
			"pool rejected worker credentials").
			WithContext("user", user)
	}

	c.logger.Info("authorized", "user", user)
	return nil
}

// Submit sends mining.submit and reports the pool's accept/reject verdict.
// An explicit reject returns (false, nil); a timeout or transport failure
// returns a submission error, which is not necessarily a rejected share.
func (c *Client) Submit(ctx context.Context, user, jobID, extraNonce2, ntime, nonce string) (bool, error) {
	params := []any{user, jobID, extraNonce2, ntime, nonce}

	result, err := c.call(ctx, MethodSubmit, params, c.cfg.SubmitTimeout)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeSubmission, "submit_share",
			"no verdict received for submitted share").
			WithContext("job_id", jobID).
			WithContext("nonce", nonce)
	}

	accepted, err := ParseBoolResult(result)
	if err != nil {
		// Pools reject with an error object rather than result=false;
		// the stratum error was already surfaced by call as a reject.
		return false, errors.Wrap(err, errors.ErrorTypeProtocol, "submit_share",
			"malformed mining.submit reply")
	}

	c.logger.LogShareResult(jobID, nonce, accepted)
	return accepted, nil
}

// PopNewestJob removes and returns the most recent job, discarding any
// older queued jobs. Returns false when the queue is empty.
func (c *Client) PopNewestJob() (Job, bool) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()

	if len(c.jobQueue) == 0 {
		return Job{}, false
	}

	job := c.jobQueue[len(c.jobQueue)-1]
	c.jobQueue = c.jobQueue[:0]
	return job, true
}

// HasPendingJob reports whether a new job is queued. The mining loop checks
// this at chunk granularity to abandon stale sweeps.
func (c *Client) HasPendingJob() bool {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	return len(c.jobQueue) > 0
}

// JobReady signals (coalesced) whenever a job arrives.
func (c *Client) JobReady() <-chan struct{} {
	return c.jobReady
}

// DifficultyUpdates delivers mining.set_difficulty values.
func (c *Client) DifficultyUpdates() <-chan float64 {
	return c.diffUpdates
}

// Difficulty returns the current pool difficulty.
func (c *Client) Difficulty() float64 {
	return math.Float64frombits(c.difficulty.Load())
}

// ExtraNonce1 returns the pool-assigned nonce fragment from subscribe.
func (c *Client) ExtraNonce1() string {
	return c.extraNonce1
}

// ExtraNonce2Size returns the required extraNonce2 byte length from subscribe.
func (c *Client) ExtraNonce2Size() int {
	return c.extraNonce2Size
}

// call sends a request and waits for the correlated reply, a timeout, or
// session teardown. Every outbound call is tagged with a monotonically
// increasing id held in the pending-request table until resolved.
func (c *Client) call(ctx context.Context, method string, params []any, timeout time.Duration) (any, error) {
	id := c.nextID.Add(1)

	pc := &pendingCall{
		method:   method,
		deadline: time.Now().Add(timeout),
		done:     make(chan callResult, 1),
	}

	c.pendMu.Lock()
	c.pending[id] = pc
	c.pendMu.Unlock()

	if err := c.send(NewRequest(id, method, params)); err != nil {
		c.removePending(id)
		return nil, err
	}

	select {
	case res := <-pc.done:
		if res.err != nil {
			return nil, res.err
		}
		if res.stratumErr != nil {
			return nil, errors.New(errors.ErrorTypeProtocol, method,
				res.stratumErr.Message).
				WithContext("code", res.stratumErr.Code)
		}
		return res.result, nil
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	case <-c.done:
		c.removePending(id)
		return nil, errors.New(errors.ErrorTypeNetwork, method, "session closed")
	}
}

// removePending drops one entry from the pending-request table.
func (c *Client) removePending(id uint64) {
	c.pendMu.Lock()
	delete(c.pending, id)
	c.pendMu.Unlock()
}

// send marshals and queues one outbound message.
func (c *Client) send(msg *Message) error {
	data, err := MarshalMessage(msg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "send", "failed to marshal message")
	}

	select {
	case c.outbound <- data:
		return nil
	case <-c.done:
		return errors.New(errors.ErrorTypeNetwork, "send", "session closed")
	default:
		return errors.New(errors.ErrorTypeNetwork, "send", "outbound queue full")
	}
}

// readLoop consumes server lines until the connection drops.
func (c *Client) readLoop() {
	defer c.shutdown("connection lost")

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 4096), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		c.logger.LogStratumMessage("received", string(line))
		c.handleLine(line)
	}

	if err := scanner.Err(); err != nil {
		select {
		case <-c.done:
			// Expected during Close
		default:
			c.logger.WithError(err).Warn("read loop terminated")
		}
	}
}

// writeLoop drains the outbound queue to the connection.
func (c *Client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.outbound:
			data = append(data, '\n')
			if _, err := c.conn.Write(data); err != nil {
				c.logger.WithError(err).Warn("write failed")
				c.shutdown("write failed")
				return
			}
			c.logger.LogStratumMessage("sent", string(data[:len(data)-1]))
		}
	}
}

// expireLoop resolves pending requests whose deadline has passed as timeout
// errors, so entries never leak while the session lives.
func (c *Client) expireLoop() {
	ticker := time.NewTicker(expireInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			c.pendMu.Lock()
			for id, pc := range c.pending {
				if now.Before(pc.deadline) {
					continue
				}
				delete(c.pending, id)
				pc.done <- callResult{err: errors.New(errors.ErrorTypeTimeout, pc.method,
					"no reply before deadline")}
			}
			c.pendMu.Unlock()
		}
	}
}

// handleLine dispatches one inbound message. Malformed units are dropped:
// protocol errors are never fatal to the session.
func (c *Client) handleLine(line []byte) {
	msg, err := ParseMessage(line)
	if err != nil {
		c.logger.WithError(err).Debug("dropping unparseable line")
		return
	}

	switch {
	case msg.IsNotification():
		c.handleNotification(msg)
	case msg.IsResponse():
		c.handleResponse(msg)
	default:
		c.logger.Debug("dropping unexpected message", "method", msg.Method)
	}
}

func (c *Client) handleNotification(msg *Message) {
	switch msg.Method {
	case MethodNotify:
		job, err := ParseNotify(msg.Params)
		if err != nil {
			c.logger.WithError(err).Warn("dropping malformed job")
			return
		}
		c.enqueueJob(*job)
	case MethodSetDifficulty:
		difficulty, err := ParseSetDifficulty(msg.Params)
		if err != nil {
			c.logger.WithError(err).Warn("dropping malformed difficulty update")
			return
		}
		c.difficulty.Store(math.Float64bits(difficulty))
		select {
		case c.diffUpdates <- difficulty:
		default:
		}
	default:
		c.logger.Debug("ignoring notification", "method", msg.Method)
	}
}

func (c *Client) handleResponse(msg *Message) {
	id, ok := requestID(msg.ID)
	if !ok {
		c.logger.Debug("dropping reply with unusable id")
		return
	}

	c.pendMu.Lock()
	pc, exists := c.pending[id]
	if exists {
		delete(c.pending, id)
	}
	c.pendMu.Unlock()

	if !exists {
		// Late or unknown reply; not an error
		c.logger.Debug("dropping reply for unknown id", "id", id)
		return
	}

	pc.done <- callResult{result: msg.Result, stratumErr: msg.Error}
}

// enqueueJob appends a job to the queue. A clean-jobs flag invalidates all
// previously queued jobs so only the new one remains.
func (c *Client) enqueueJob(job Job) {
	c.queueMu.Lock()
	if job.CleanJobs {
		c.jobQueue = c.jobQueue[:0]
	}
	c.jobQueue = append(c.jobQueue, job)
	c.queueMu.Unlock()

	c.logger.WithJob(job.JobID).Debug("job queued", "clean_jobs", job.CleanJobs)

	select {
	case c.jobReady <- struct{}{}:
	default:
	}
}

// shutdown closes the session once: the connection is closed, the done
// channel released, and every pending request resolved as failed.
func (c *Client) shutdown(reason string) {
	c.closed.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}

		c.pendMu.Lock()
		for id, pc := range c.pending {
			delete(c.pending, id)
			pc.done <- callResult{err: errors.New(errors.ErrorTypeNetwork, pc.method,
				"session closed before reply")}
		}
		c.pendMu.Unlock()

		c.logger.Info("session ended", "reason", reason)
	})
}
