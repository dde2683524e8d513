package pool

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/thushan/edgeproxy/internal/core/domain"
)

// ConnectionFactory creates fresh TCP channels to an origin. Installing
// the outbound pipeline on the returned connection is the caller's (the
// pool's) responsibility, via pipeline.Builder.
type ConnectionFactory interface {
	Dial(ctx context.Context, server domain.Server) (net.Conn, error)
}

// DialerConfig tunes the default factory's net.Dialer: TCP SetNoDelay /
// SetKeepAlive tuning for low-latency streaming workloads.
type DialerConfig struct {
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
	SetNoDelay     bool
}

// DefaultDialerConfig mirrors the proxy's established low-latency
// dialer defaults.
func DefaultDialerConfig() DialerConfig {
	return DialerConfig{
		ConnectTimeout: 30 * time.Second,
		KeepAlive:      30 * time.Second,
		SetNoDelay:     true,
	}
}

// DialConnectionFactory is the default net.Dialer-backed ConnectionFactory.
type DialConnectionFactory struct {
	cfg DialerConfig
}

// NewDialConnectionFactory builds a factory with the given dialer tuning.
func NewDialConnectionFactory(cfg DialerConfig) *DialConnectionFactory {
	return &DialConnectionFactory{cfg: cfg}
}

func (f *DialConnectionFactory) Dial(ctx context.Context, server domain.Server) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout:   f.cfg.ConnectTimeout,
		KeepAlive: f.cfg.KeepAlive,
	}

	addr := net.JoinHostPort(server.Host(), strconv.Itoa(server.Port()))
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(f.cfg.SetNoDelay)
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(f.cfg.KeepAlive)
	}

	return conn, nil
}
