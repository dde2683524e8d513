package domain

import (
	"sync/atomic"
)

// Server identifies one origin endpoint. It is immutable once constructed
// and exposes Host/Port uniformly whether it came from static config or
// from a discovery-derived source.
type Server struct {
	host       string
	port       int
	discovered bool
}

// NewServer builds a plain, statically-configured origin.
func NewServer(host string, port int) Server {
	return Server{host: host, port: port}
}

// NewDiscoveredServer builds an origin sourced from service discovery.
// It exposes Host/Port identically to a plain Server; the pool never
// branches on the distinction beyond this constructor tag.
func NewDiscoveredServer(host string, port int) Server {
	return Server{host: host, port: port, discovered: true}
}

func (s Server) Host() string     { return s.host }
func (s Server) Port() int        { return s.port }
func (s Server) Discovered() bool { return s.discovered }

// ServerStats holds mutable counters for one origin. Updated by the pool
// only; read by an external load balancer collaborator.
type ServerStats struct {
	OpenConnections    atomic.Int64
	ActiveRequests     atomic.Int64
	SuccessiveFailures atomic.Int64
	TotalFailures      atomic.Int64
}

// NewServerStats returns a zeroed ServerStats.
func NewServerStats() *ServerStats {
	return &ServerStats{}
}

// RecordConnectSuccess resets the successive-failure streak; it does not
// touch TotalFailures, which is a lifetime counter.
func (s *ServerStats) RecordConnectSuccess() {
	s.SuccessiveFailures.Store(0)
}

// RecordConnectFailure increments both the successive-failure streak and
// the lifetime failure counter.
func (s *ServerStats) RecordConnectFailure() {
	s.SuccessiveFailures.Add(1)
	s.TotalFailures.Add(1)
}
