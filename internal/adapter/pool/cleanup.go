package pool

import (
	"context"
	"time"

	"github.com/thushan/edgeproxy/internal/logger"
	"github.com/thushan/edgeproxy/pkg/lifo"
)

// CleanupLoop periodically sweeps every per-loop idle deque and closes
// connections that have sat idle past the pool's configured timeout.
type CleanupLoop struct {
	pool     *PerServerConnectionPool
	interval time.Duration
	log      *logger.StyledLogger
}

// NewCleanupLoop builds a sweep loop for pool, ticking every interval.
func NewCleanupLoop(pool *PerServerConnectionPool, interval time.Duration, log *logger.StyledLogger) *CleanupLoop {
	return &CleanupLoop{pool: pool, interval: interval, log: log}
}

// Run blocks, sweeping on each tick, until ctx is cancelled.
func (c *CleanupLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *CleanupLoop) sweep() {
	timeout := c.pool.config.IdleTimeout
	if timeout <= 0 {
		return
	}

	var expired []*OriginConnection
	c.pool.perLoopIdle.Range(func(_ LoopID, dq *lifo.Stack[*OriginConnection]) bool {
		for _, conn := range dq.Drain() {
			if idle, ok := conn.IdleSince(); ok && idle >= timeout {
				expired = append(expired, conn)
				continue
			}
			// Still fresh: put it back. Racing acquirers simply see an
			// empty deque for the instant of the sweep, which is the
			// same transient emptiness a concurrent Pop/Push causes.
			dq.Push(conn)
		}
		return true
	})

	for _, conn := range expired {
		c.pool.Metrics.ConnsInPool.Add(-1)
		_ = conn.Close()
		if c.log != nil {
			c.log.Debug("closed idle connection past timeout", "origin", c.pool.config.OriginName)
		}
	}
}
