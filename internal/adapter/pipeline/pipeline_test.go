package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thushan/edgeproxy/internal/core/domain"
)

func TestBuild_FixedOrder(t *testing.T) {
	b := NewBuilder(OutboundPipelineInitializer{})
	stages := b.Build(nil, domain.ConnectionPoolConfig{OriginName: "test"})

	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name()
	}
	require.Equal(t, []string{"codec", "idle-handler", "lifecycle", "metrics", "pool-handler"}, names)
}

func TestIdleStage_TracksActivity(t *testing.T) {
	s := NewIdleStage().(*idleStage)
	before := s.lastActivity

	_, err := s.OnRead([]byte("x"))
	require.NoError(t, err)
	require.True(t, s.lastActivity.After(before) || s.lastActivity.Equal(before))
}

func TestLifecycleStage_FiresCallback(t *testing.T) {
	var got Event
	s := &lifecycleStage{onEvent: func(e Event) { got = e }}
	s.OnEvent(EventConnected)
	require.Equal(t, EventConnected, got)
}

type countingSink struct {
	reads, writes int
}

func (c *countingSink) IncrCounter(name string, _ map[string]string) {
	switch name {
	case "origin.bytes_read":
		c.reads++
	case "origin.bytes_written":
		c.writes++
	}
}
func (c *countingSink) SetGauge(string, float64, map[string]string) {}

func TestMetricsStage_CountsReadsAndWrites(t *testing.T) {
	sink := &countingSink{}
	s := &metricsStage{sink: sink, originName: "test"}

	_, _ = s.OnRead([]byte("a"))
	_, _ = s.OnWrite([]byte("b"))

	require.Equal(t, 1, sink.reads)
	require.Equal(t, 1, sink.writes)
}
