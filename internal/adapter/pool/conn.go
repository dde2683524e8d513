package pool

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thushan/edgeproxy/internal/adapter/passport"
	"github.com/thushan/edgeproxy/internal/adapter/pipeline"
	"github.com/thushan/edgeproxy/internal/core/domain"
)

// connState is the tagged state of one OriginConnection, preferred over
// two independent booleans to avoid impossible combinations.
type connState int32

const (
	stateConnecting connState = iota
	stateInUse
	stateIdle
	stateClosed
)

// LoopID identifies the caller's event loop for the purpose of
// partitioning idle connections. This core has no real reactor, so a
// LoopID is whatever identity the caller's goroutine pool assigns it —
// typically a worker-slot index.
type LoopID uint64

// OriginConnection wraps one open TCP channel to an origin. The channel
// is owned exclusively by this object until Close.
type OriginConnection struct {
	conn   net.Conn
	loop   LoopID
	config domain.ConnectionPoolConfig

	state      atomic.Int32
	usageCount atomic.Uint32

	requestTimerMu sync.Mutex
	requestTimer   time.Time
	hasTimer       bool

	Passport *passport.Trace

	stagesMu sync.Mutex
	stages   []pipeline.Stage

	closeOnce sync.Once
	closeErr  error
}

// newOriginConnection wraps a freshly-dialed net.Conn, in the connecting
// state — it is the pool's job to transition it to in-use before the
// on-acquire hook runs.
func newOriginConnection(conn net.Conn, loop LoopID, cfg domain.ConnectionPoolConfig) *OriginConnection {
	oc := &OriginConnection{
		conn:     conn,
		loop:     loop,
		config:   cfg,
		Passport: passport.New(),
	}
	oc.state.Store(int32(stateConnecting))
	return oc
}

func (c *OriginConnection) Loop() LoopID { return c.loop }

// Conn exposes the underlying transport for the pipeline/factory to
// write to and read from.
func (c *OriginConnection) Conn() net.Conn { return c.conn }

// InPool reports whether this connection currently sits in an idle
// deque.
func (c *OriginConnection) InPool() bool {
	return connState(c.state.Load()) == stateIdle
}

// InUse reports whether this connection is currently serving a request.
func (c *OriginConnection) InUse() bool {
	return connState(c.state.Load()) == stateInUse
}

// Closed reports whether Close has completed.
func (c *OriginConnection) Closed() bool {
	return connState(c.state.Load()) == stateClosed
}

// markInUse transitions connecting|idle -> in_use. Called by the pool's
// Acquire and connect-completion paths before the on-acquire hook runs;
// it is the pool's responsibility to only call this from a state that
// legally allows it.
func (c *OriginConnection) markInUse() {
	c.state.Store(int32(stateInUse))
}

// markIdle transitions in_use -> idle, on Release's success path.
func (c *OriginConnection) markIdle() {
	c.state.Store(int32(stateIdle))
}

// InstallStages builds this channel's fixed-order stage chain on first
// call and returns it; later calls (on every subsequent reuse of the
// same channel) are a no-op and just return the already-built chain, so
// the pipeline is installed once per dialed channel rather than rebuilt
// on every acquire.
func (c *OriginConnection) InstallStages(build func() []pipeline.Stage) []pipeline.Stage {
	c.stagesMu.Lock()
	defer c.stagesMu.Unlock()
	if c.stages == nil {
		c.stages = build()
	}
	return c.stages
}

// Stages returns the channel's installed stage chain, or nil if none was
// ever installed (e.g. a test pool built with no onAcquire hook).
func (c *OriginConnection) Stages() []pipeline.Stage {
	c.stagesMu.Lock()
	defer c.stagesMu.Unlock()
	return c.stages
}

// ReinstallIdleStage swaps in a freshly built idle-handler stage so the
// idle timer measures idleness-since-last-use rather than
// idleness-since-channel-open, then fires EventActive across the whole
// chain — the pipeline-level effect of the pool's on-acquire hook.
func (c *OriginConnection) ReinstallIdleStage(newIdle func() pipeline.Stage) {
	c.stagesMu.Lock()
	defer c.stagesMu.Unlock()
	for i, s := range c.stages {
		if s.Name() == "idle-handler" {
			c.stages[i] = newIdle()
			break
		}
	}
	for _, s := range c.stages {
		s.OnEvent(pipeline.EventActive)
	}
}

// UsageCount returns the number of times this connection has been
// acquired (reused).
func (c *OriginConnection) UsageCount() uint32 {
	return c.usageCount.Load()
}

func (c *OriginConnection) incrementUsage() {
	c.usageCount.Add(1)
}

// StartRequestTimer records the instant a request started using this
// connection.
func (c *OriginConnection) StartRequestTimer() {
	c.requestTimerMu.Lock()
	defer c.requestTimerMu.Unlock()
	c.requestTimer = time.Now()
	c.hasTimer = true
}

// IdleSince returns the time elapsed since the request timer was last
// started (the most recent acquire, so time spent in use is included),
// and whether a timer was ever started. Used by the idle-timeout sweep.
func (c *OriginConnection) IdleSince() (time.Duration, bool) {
	c.requestTimerMu.Lock()
	defer c.requestTimerMu.Unlock()
	if !c.hasTimer {
		return 0, false
	}
	return time.Since(c.requestTimer), true
}

// IsActiveAndOpen reports whether the channel is usable: not closed, and
// — via a non-blocking liveness probe — not already torn down by the
// remote peer without our knowledge: no idle connection should be
// returned unless its underlying channel is both active and open.
func (c *OriginConnection) IsActiveAndOpen() bool {
	if c.Closed() {
		return false
	}
	return probeAlive(c.conn)
}

// probeAlive performs a zero-byte-consuming liveness check: it arms a
// deadline far in the past, attempts a tiny read, and restores the
// deadline. A timeout error means nothing arrived (the common, healthy
// case for an idle keep-alive connection); io.EOF or a "use of closed
// network connection" error means the peer or we tore the channel down.
func probeAlive(conn net.Conn) bool {
	if conn == nil {
		return false
	}
	_ = conn.SetReadDeadline(time.Now().Add(-time.Second))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	one := make([]byte, 1)
	_, err := conn.Read(one)
	if err == nil {
		// Unexpected: the origin pushed a byte while idle. Treat the
		// channel as dead rather than silently dropping it.
		return false
	}
	if errors.Is(err, io.EOF) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// Close tears down the underlying transport. Idempotent — the second and
// further calls are a no-op.
func (c *OriginConnection) Close() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(stateClosed))
		if c.conn != nil {
			c.closeErr = c.conn.Close()
		}
	})
	return c.closeErr
}
