package pool

import "sync/atomic"

// Stats holds the pool's metric counters, all atomic — they are
// gauges/counters, not synchronization points.
type Stats struct {
	RequestConn              atomic.Int64
	ReuseConn                atomic.Int64
	CreateNewConn            atomic.Int64
	CreateConnSucceeded      atomic.Int64
	CreateConnFailed         atomic.Int64
	ConnTakenFromPoolNotOpen atomic.Int64
	MaxConnsPerHostExceeded  atomic.Int64

	ConnsInPool             atomic.Int64
	ConnsInUse              atomic.Int64
	ConnCreationsInProgress atomic.Int64
}

// Snapshot is an immutable copy of Stats, useful for tests and for an
// external metrics backend that wants a point-in-time read.
type Snapshot struct {
	RequestConn              int64
	ReuseConn                int64
	CreateNewConn            int64
	CreateConnSucceeded      int64
	CreateConnFailed         int64
	ConnTakenFromPoolNotOpen int64
	MaxConnsPerHostExceeded  int64
	ConnsInPool              int64
	ConnsInUse               int64
	ConnCreationsInProgress  int64
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		RequestConn:              s.RequestConn.Load(),
		ReuseConn:                s.ReuseConn.Load(),
		CreateNewConn:            s.CreateNewConn.Load(),
		CreateConnSucceeded:      s.CreateConnSucceeded.Load(),
		CreateConnFailed:         s.CreateConnFailed.Load(),
		ConnTakenFromPoolNotOpen: s.ConnTakenFromPoolNotOpen.Load(),
		MaxConnsPerHostExceeded:  s.MaxConnsPerHostExceeded.Load(),
		ConnsInPool:              s.ConnsInPool.Load(),
		ConnsInUse:               s.ConnsInUse.Load(),
		ConnCreationsInProgress:  s.ConnCreationsInProgress.Load(),
	}
}
