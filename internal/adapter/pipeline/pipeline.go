// Package pipeline builds the fixed-order handler chain installed on
// every newly dialled origin channel: codec, idle-handler, lifecycle,
// metrics, pool-handler, in that order. There is no real event-loop
// engine backing these stages, but the chain is not decorative: a
// caller writing/reading an OriginConnection's bytes (see
// outbound.Forwarder) runs them through OnWrite/OnRead in order, the
// same role the handler chain plays in a reactor-based proxy.
package pipeline

import (
	"net"
	"time"

	"github.com/thushan/edgeproxy/internal/core/domain"
	"github.com/thushan/edgeproxy/internal/core/ports"
)

// Event is a channel lifecycle notification a Stage may react to.
type Event int

const (
	EventConnected Event = iota
	EventIdle
	EventActive
	EventClosed
)

// Stage is one link in the handler chain installed on an origin
// channel. Implementations may be no-ops for any of the three hooks;
// OnRead/OnWrite see raw bytes crossing the wire, OnEvent sees
// lifecycle notifications (idle timer firing, reuse, close).
type Stage interface {
	Name() string
	OnRead(b []byte) ([]byte, error)
	OnWrite(b []byte) ([]byte, error)
	OnEvent(evt Event)
}

// baseStage gives a Stage no-op defaults; embed it and override only
// the hooks a stage actually needs.
type baseStage struct{ name string }

func (b baseStage) Name() string                    { return b.name }
func (b baseStage) OnRead(p []byte) ([]byte, error) { return p, nil }
func (b baseStage) OnWrite(p []byte) ([]byte, error) { return p, nil }
func (b baseStage) OnEvent(Event)                   {}

// codecStage delegates framing to the external codec collaborator.
// This core never parses HTTP itself; Decode/Encode are no-ops when no
// Codec was configured, since net/http already performs inbound framing
// and the pool writes raw dialled bytes on the outbound side.
type codecStage struct {
	baseStage
	codec ports.Codec
}

func (s *codecStage) OnRead(p []byte) ([]byte, error) {
	if s.codec == nil {
		return p, nil
	}
	msg, err := s.codec.Decode(p)
	if err != nil {
		return nil, err
	}
	_ = msg
	return p, nil
}

// idleStage tracks the channel's last-activity timestamp; it is removed
// and reinstalled fresh on every Acquire, matching the "idle-state handler
// is removed and reinstalled on every acquire" behavior. The pool's idle
// sweep (CleanupLoop) does not read this timestamp; it uses the
// connection's request timer.
type idleStage struct {
	baseStage
	lastActivity time.Time
}

// NewIdleStage returns a fresh idle-handler stage. Exported so a pool
// can rebuild just this one stage on every acquire of a reused
// connection, without asking the Builder to rebuild the whole chain.
func NewIdleStage() Stage {
	return &idleStage{baseStage: baseStage{name: "idle-handler"}, lastActivity: time.Now()}
}

func (s *idleStage) OnRead(p []byte) ([]byte, error) {
	s.lastActivity = time.Now()
	return p, nil
}

func (s *idleStage) OnWrite(p []byte) ([]byte, error) {
	s.lastActivity = time.Now()
	return p, nil
}

func (s *idleStage) OnEvent(evt Event) {
	if evt == EventActive {
		s.lastActivity = time.Now()
	}
}

// lifecycleStage forwards lifecycle events to an optional callback. It
// does not write the channel's passport trace (callers append passport
// events themselves via OriginConnection); it is a seam for any
// collaborator that wants to observe pure lifecycle events without
// touching the trace directly.
type lifecycleStage struct {
	baseStage
	onEvent func(Event)
}

func (s *lifecycleStage) OnEvent(evt Event) {
	if s.onEvent != nil {
		s.onEvent(evt)
	}
}

// metricsStage increments a read or write counter on an external sink
// once per chunk that crosses the wire; byte totals are not reported.
type metricsStage struct {
	baseStage
	sink       ports.MetricsSink
	originName string
}

func (s *metricsStage) OnRead(p []byte) ([]byte, error) {
	if s.sink != nil {
		s.sink.IncrCounter("origin.bytes_read", map[string]string{"origin": s.originName})
	}
	return p, nil
}

func (s *metricsStage) OnWrite(p []byte) ([]byte, error) {
	if s.sink != nil {
		s.sink.IncrCounter("origin.bytes_written", map[string]string{"origin": s.originName})
	}
	return p, nil
}

// poolStage is the terminal link: it has nothing to transform, it
// exists so the chain's last element is always the one nearest the
// pool's own bookkeeping, mirroring a handler-chain's tail handler.
type poolStage struct{ baseStage }

// OutboundPipelineInitializer builds the fixed-order stage chain for a
// freshly dialled origin channel.
type OutboundPipelineInitializer struct {
	Codec       ports.Codec
	Metrics     ports.MetricsSink
	OnLifecycle func(Event)
}

// Builder constructs handler chains from an OutboundPipelineInitializer.
type Builder struct {
	init OutboundPipelineInitializer
}

// NewBuilder returns a Builder using init for every channel it builds.
func NewBuilder(init OutboundPipelineInitializer) *Builder {
	return &Builder{init: init}
}

// Build returns the fixed-order stage chain for one origin channel:
// codec, idle-handler, lifecycle, metrics, pool-handler.
func (b *Builder) Build(_ net.Conn, cfg domain.ConnectionPoolConfig) []Stage {
	return []Stage{
		&codecStage{baseStage: baseStage{name: "codec"}, codec: b.init.Codec},
		NewIdleStage(),
		&lifecycleStage{baseStage: baseStage{name: "lifecycle"}, onEvent: b.init.OnLifecycle},
		&metricsStage{baseStage: baseStage{name: "metrics"}, sink: b.init.Metrics, originName: cfg.OriginName},
		&poolStage{baseStage{name: "pool-handler"}},
	}
}
