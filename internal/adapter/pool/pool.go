// Package pool implements the outbound per-origin, per-event-loop
// connection pool: PerServerConnectionPool owns, for one origin, a
// mapping from event-loop identity to a lock-free idle deque of
// OriginConnections, and exposes Acquire/Release/Remove/Shutdown.
package pool

import (
	"context"
	"fmt"
	"net"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/errgroup"

	"github.com/thushan/edgeproxy/internal/adapter/passport"
	"github.com/thushan/edgeproxy/internal/core/constants"
	"github.com/thushan/edgeproxy/internal/core/domain"
	"github.com/thushan/edgeproxy/internal/logger"
	"github.com/thushan/edgeproxy/pkg/lifo"
)

// OnAcquireHook runs once a connection transitions to in-use, whether it
// came from the idle deque or from a fresh connect: it removes and
// reinstalls the idle-state handler in the pipeline, resetting the idle
// timer, and starts the read side of the request. Those pipeline-level
// effects live in the pipeline/inbound packages; the pool only
// guarantees the hook runs under the connection's state transition, in
// order, exactly once per acquire.
type OnAcquireHook func(conn *OriginConnection)

// PerServerConnectionPool is the pool for one origin Server.
type PerServerConnectionPool struct {
	server  domain.Server
	stats   *domain.ServerStats
	config  domain.ConnectionPoolConfig
	factory ConnectionFactory
	onAcq   OnAcquireHook
	log     *logger.StyledLogger

	Metrics Stats

	perLoopIdle xsync.Map[LoopID, *lifo.Stack[*OriginConnection]]
}

// New builds a pool for one origin.
func New(
	server domain.Server,
	stats *domain.ServerStats,
	config domain.ConnectionPoolConfig,
	factory ConnectionFactory,
	onAcquire OnAcquireHook,
	log *logger.StyledLogger,
) *PerServerConnectionPool {
	return &PerServerConnectionPool{
		server:      server,
		stats:       stats,
		config:      config,
		factory:     factory,
		onAcq:       onAcquire,
		log:         log,
		perLoopIdle: *xsync.NewMap[LoopID, *lifo.Stack[*OriginConnection]](),
	}
}

func (p *PerServerConnectionPool) deque(loop LoopID) *lifo.Stack[*OriginConnection] {
	// LoadOrStore races benignly: under contention two goroutines may
	// each construct an empty Stack, and the loser's is discarded. That's
	// intentional, to avoid locking the caller over map population.
	existing, _ := p.perLoopIdle.LoadOrStore(loop, lifo.New[*OriginConnection]())
	return existing
}

// Acquire returns an in-use connection for loop, reusing an idle one if
// a live candidate is available, else dialing a fresh one.
func (p *PerServerConnectionPool) Acquire(ctx context.Context, loop LoopID) (*OriginConnection, error) {
	p.Metrics.RequestConn.Add(1)

	dq := p.deque(loop)
	for {
		conn, ok := dq.Pop()
		if !ok {
			break
		}
		conn.markInUse()

		if conn.IsActiveAndOpen() {
			p.Metrics.ReuseConn.Add(1)
			p.Metrics.ConnsInUse.Add(1)
			p.Metrics.ConnsInPool.Add(-1)
			p.runOnAcquire(conn)
			return conn, nil
		}

		p.Metrics.ConnTakenFromPoolNotOpen.Add(1)
		p.Metrics.ConnsInPool.Add(-1)
		_ = conn.Close()
	}

	return p.tryMakeNewConnection(ctx, loop)
}

// runOnAcquire bumps the usage count, starts the request timer, increments
// ActiveRequests and calls the configured hook; callers mark the
// connection in-use before calling it. Success counters are recorded
// before the hook runs, so a panicking hook does not roll back accounting.
func (p *PerServerConnectionPool) runOnAcquire(conn *OriginConnection) {
	conn.incrementUsage()
	conn.StartRequestTimer()
	p.stats.ActiveRequests.Add(1)
	if p.onAcq != nil {
		p.onAcq(conn)
	}
}

// tryMakeNewConnection enforces the per-host ceiling, then dials.
func (p *PerServerConnectionPool) tryMakeNewConnection(ctx context.Context, loop LoopID) (*OriginConnection, error) {
	openAndOpening := p.stats.OpenConnections.Load() + p.Metrics.ConnCreationsInProgress.Load()

	if p.config.MaxConnectionsEnabled() && openAndOpening >= int64(p.config.MaxConnectionsPerHost) {
		p.Metrics.MaxConnsPerHostExceeded.Add(1)
		return nil, domain.NewMaxConnectionsPerHostError(p.config.OriginName)
	}

	p.Metrics.CreateNewConn.Add(1)
	p.Metrics.ConnCreationsInProgress.Add(1)

	trace := passport.New()
	trace.Append(constants.PassportOriginChConnecting)

	rawConn, err := p.factory.Dial(ctx, p.server)
	return p.handleConnectCompletion(loop, trace, rawConn, err)
}

// handleConnectCompletion finishes wiring a dial attempt into either a
// usable OriginConnection or a recorded failure. The success path
// increments ActiveRequests directly and runOnAcquire increments it
// again, so a freshly dialed connection adds 2 where a reused one (which
// goes through runOnAcquire alone) adds 1; Release subtracts 1.
func (p *PerServerConnectionPool) handleConnectCompletion(loop LoopID, trace *passport.Trace, rawConn net.Conn, dialErr error) (*OriginConnection, error) {
	p.Metrics.ConnCreationsInProgress.Add(-1)

	if dialErr != nil {
		p.stats.RecordConnectFailure()
		p.Metrics.CreateConnFailed.Add(1)
		return nil, domain.NewConnectError(p.config.OriginName, dialErr)
	}

	oc := newOriginConnection(rawConn, loop, p.config)
	oc.Passport = trace
	oc.Passport.Append(constants.PassportOriginChConnected)
	oc.markInUse()

	p.stats.OpenConnections.Add(1)
	p.stats.ActiveRequests.Add(1)
	p.stats.RecordConnectSuccess()
	p.Metrics.CreateConnSucceeded.Add(1)
	p.Metrics.ConnsInUse.Add(1)

	p.runOnAcquire(oc)
	return oc, nil
}

// Release returns conn to its loop's idle deque, unless the pool's
// per-loop waterline is already at capacity, in which case the
// connection is closed instead of pooled.
func (p *PerServerConnectionPool) Release(conn *OriginConnection) bool {
	if conn == nil || conn.InPool() || conn.Closed() {
		return false
	}

	dq := p.deque(conn.Loop())

	if p.config.WaterlineEnabled() && dq.Len() >= p.config.PerServerWaterline {
		_ = conn.Close()
		return false
	}

	dq.Push(conn)
	conn.markIdle()
	p.Metrics.ConnsInPool.Add(1)
	p.Metrics.ConnsInUse.Add(-1)
	p.stats.ActiveRequests.Add(-1)
	conn.Passport.Append(constants.PassportOriginChPoolReturned)
	return true
}

// Remove finds conn in whichever per-loop deque holds it and evicts it
// without closing it, for callers that intend to close it themselves.
func (p *PerServerConnectionPool) Remove(conn *OriginConnection) bool {
	if conn == nil {
		return false
	}
	dq := p.deque(conn.Loop())
	found := dq.Remove(func(c *OriginConnection) bool { return c == conn })
	if found {
		p.Metrics.ConnsInPool.Add(-1)
	}
	return found
}

// Shutdown closes every idle connection across every event loop.
func (p *PerServerConnectionPool) Shutdown(ctx context.Context) error {
	var g errgroup.Group
	p.perLoopIdle.Range(func(_ LoopID, dq *lifo.Stack[*OriginConnection]) bool {
		conns := dq.Drain()
		for _, c := range conns {
			c := c
			g.Go(func() error {
				return c.Close()
			})
		}
		return true
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("pool shutdown for %s: %w", p.config.OriginName, err)
	}
	return nil
}

// Snapshot returns a point-in-time copy of this pool's counters.
func (p *PerServerConnectionPool) Snapshot() Snapshot {
	return p.Metrics.Snapshot()
}

// OriginName returns the name of the origin this pool serves.
func (p *PerServerConnectionPool) OriginName() string {
	return p.config.OriginName
}
