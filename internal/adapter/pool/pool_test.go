package pool

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thushan/edgeproxy/internal/adapter/pipeline"
	"github.com/thushan/edgeproxy/internal/core/domain"
)

// fakeFactory dials in-memory net.Pipe connections instead of real TCP,
// so tests exercise pool bookkeeping without a listening origin.
type fakeFactory struct {
	dialCount int
	failNext  bool
}

func (f *fakeFactory) Dial(_ context.Context, _ domain.Server) (net.Conn, error) {
	f.dialCount++
	if f.failNext {
		f.failNext = false
		return nil, errDial
	}
	client, server := net.Pipe()
	// Keep the far end alive so reads never see EOF during IsActiveAndOpen.
	go func() {
		buf := make([]byte, 1)
		for {
			if _, err := server.Read(buf); err != nil {
				return
			}
		}
	}()
	return client, nil
}

var errDial = &net.OpError{Op: "dial", Err: errDialInner{}}

type errDialInner struct{}

func (errDialInner) Error() string { return "refused" }

func testPool(t *testing.T, cfg domain.ConnectionPoolConfig) (*PerServerConnectionPool, *fakeFactory) {
	t.Helper()
	factory := &fakeFactory{}
	p := New(domain.NewServer("origin.test", 8080), domain.NewServerStats(), cfg, factory, nil, nil)
	return p, factory
}

func defaultCfg() domain.ConnectionPoolConfig {
	return domain.ConnectionPoolConfig{
		OriginName:            "test",
		IdleTimeout:           time.Minute,
		MaxConnectionsPerHost: -1,
		PerServerWaterline:    -1,
	}
}

// S1: an idle connection is reused on the next Acquire for the same loop.
func TestAcquire_ReusesIdleConnection(t *testing.T) {
	p, factory := testPool(t, defaultCfg())

	conn, err := p.Acquire(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, p.Release(conn))

	reused, err := p.Acquire(context.Background(), 1)
	require.NoError(t, err)
	require.Same(t, conn, reused)
	require.Equal(t, 1, factory.dialCount)
	require.Equal(t, uint32(2), reused.UsageCount())
}

// S2: the per-host ceiling is enforced and surfaces a MaxConnectionsPerHost error.
func TestAcquire_MaxConnectionsPerHostExceeded(t *testing.T) {
	cfg := defaultCfg()
	cfg.MaxConnectionsPerHost = 1
	p, _ := testPool(t, cfg)

	conn, err := p.Acquire(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, conn)

	_, err = p.Acquire(context.Background(), 2)
	require.Error(t, err)

	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	require.Equal(t, domain.KindMaxConnectionsPerHost, derr.Kind)
	require.Equal(t, int64(1), p.Snapshot().MaxConnsPerHostExceeded)
}

// S3: a dead idle connection is skipped and a fresh one is dialed instead.
func TestAcquire_SkipsDeadIdleConnection(t *testing.T) {
	p, factory := testPool(t, defaultCfg())

	conn, err := p.Acquire(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, p.Release(conn))

	_ = conn.Conn().Close() // simulate the peer tearing down the channel

	fresh, err := p.Acquire(context.Background(), 1)
	require.NoError(t, err)
	require.NotSame(t, conn, fresh)
	require.Equal(t, 2, factory.dialCount)
	require.Equal(t, int64(1), p.Snapshot().ConnTakenFromPoolNotOpen)
}

// S4: Release discards the connection once the per-loop waterline is full.
func TestRelease_DiscardsAboveWaterline(t *testing.T) {
	cfg := defaultCfg()
	cfg.PerServerWaterline = 0
	p, _ := testPool(t, cfg)

	conn, err := p.Acquire(context.Background(), 1)
	require.NoError(t, err)

	require.False(t, p.Release(conn))
	require.True(t, conn.Closed())
	require.Equal(t, int64(0), p.Snapshot().ConnsInPool)
}

func TestAcquire_ConnectFailureRecordsStats(t *testing.T) {
	p, factory := testPool(t, defaultCfg())
	factory.failNext = true

	_, err := p.Acquire(context.Background(), 1)
	require.Error(t, err)

	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	require.Equal(t, domain.KindConnectError, derr.Kind)
	require.Equal(t, int64(1), p.Snapshot().CreateConnFailed)
}

func TestShutdown_ClosesAllIdleConnections(t *testing.T) {
	p, _ := testPool(t, defaultCfg())

	var conns []*OriginConnection
	for i := 0; i < 3; i++ {
		conn, err := p.Acquire(context.Background(), LoopID(i))
		require.NoError(t, err)
		conns = append(conns, conn)
	}
	for _, c := range conns {
		require.True(t, p.Release(c))
	}

	require.NoError(t, p.Shutdown(context.Background()))
	for _, c := range conns {
		require.True(t, c.Closed())
	}
}

// The pipeline's stage chain is installed once per dialed channel and
// reused across acquires of the same connection; only the idle stage is
// rebuilt on every acquire.
func TestAcquire_InstallsStagesOnceAndReinstallsIdleOnReuse(t *testing.T) {
	builder := pipeline.NewBuilder(pipeline.OutboundPipelineInitializer{})
	buildCount := 0

	factory := &fakeFactory{}
	onAcquire := func(conn *OriginConnection) {
		conn.InstallStages(func() []pipeline.Stage {
			buildCount++
			return builder.Build(conn.Conn(), domain.ConnectionPoolConfig{OriginName: "test"})
		})
		conn.ReinstallIdleStage(pipeline.NewIdleStage)
	}
	p := New(domain.NewServer("origin.test", 8080), domain.NewServerStats(), defaultCfg(), factory, onAcquire, nil)

	conn, err := p.Acquire(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, buildCount)
	firstStages := conn.Stages()
	require.Len(t, firstStages, 5)
	firstIdle := firstStages[1]

	require.True(t, p.Release(conn))
	reused, err := p.Acquire(context.Background(), 1)
	require.NoError(t, err)
	require.Same(t, conn, reused)

	// The chain itself was not rebuilt...
	require.Equal(t, 1, buildCount)
	// ...but the idle stage was swapped for a fresh instance.
	require.NotSame(t, firstIdle, reused.Stages()[1])
}

func TestCleanupLoop_ClosesExpiredIdleConnections(t *testing.T) {
	cfg := defaultCfg()
	cfg.IdleTimeout = 10 * time.Millisecond
	p, _ := testPool(t, cfg)

	conn, err := p.Acquire(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, p.Release(conn))

	cl := NewCleanupLoop(p, 5*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cl.Run(ctx)

	require.Eventually(t, func() bool {
		return conn.Closed()
	}, time.Second, 5*time.Millisecond)
}
