package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/go-units"

	"github.com/thushan/edgeproxy/internal/adapter/inbound"
	"github.com/thushan/edgeproxy/internal/adapter/outbound"
	"github.com/thushan/edgeproxy/internal/adapter/pipeline"
	"github.com/thushan/edgeproxy/internal/adapter/pool"
	"github.com/thushan/edgeproxy/internal/config"
	"github.com/thushan/edgeproxy/internal/core/domain"
	"github.com/thushan/edgeproxy/internal/logger"
)

func main() {
	startTime := time.Now()

	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(buildLoggerConfig(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()
	slog.SetDefault(logInstance)

	styledLogger.Info("initialising edgeproxy", "pid", os.Getpid())
	styledLogger.Info("request limits",
		"max_body_size", units.HumanSize(float64(cfg.Server.RequestLimits.MaxBodySize)),
		"max_header_size", units.HumanSize(float64(cfg.Server.RequestLimits.MaxHeaderSize)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		styledLogger.Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	pools := make([]*pool.PerServerConnectionPool, 0, len(cfg.Origins))
	for _, originCfg := range cfg.Origins {
		p := newOriginPool(originCfg, styledLogger)
		pools = append(pools, p)

		cl := pool.NewCleanupLoop(p, originCfg.IdleTimeout, styledLogger)
		go cl.Run(ctx)

		styledLogger.InfoWithOrigin("origin pool ready", originCfg.Name,
			"host", originCfg.Host, "port", originCfg.Port)
	}

	if len(pools) == 0 {
		logger.FatalWithLogger(logInstance, "no origins configured")
	}

	forwarder := &outbound.Forwarder{Pool: pools[0], Log: styledLogger}

	receiver := &inbound.ClientRequestReceiver{
		Pipeline: forwarder,
		Writer:   &inbound.ClientResponseWriter{Log: styledLogger},
		Log:      styledLogger,
	}

	srv := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        maxBodySize(receiver, cfg.Server.RequestLimits.MaxBodySize),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: int(cfg.Server.RequestLimits.MaxHeaderSize),
	}

	go func() {
		styledLogger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.FatalWithLogger(logInstance, "server failed", "error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		styledLogger.Error("error during server shutdown", "error", err)
	}

	for _, p := range pools {
		if err := p.Shutdown(shutdownCtx); err != nil {
			styledLogger.Error("error during pool shutdown", "origin", p.OriginName(), "error", err)
		}
	}

	styledLogger.Info("edgeproxy has shutdown", "uptime", time.Since(startTime).String())
}

// newOriginPool wires a pool.PerServerConnectionPool for one configured
// origin, installing the fixed-order pipeline stage chain on every
// connection the pool's factory dials.
func newOriginPool(originCfg config.OriginConfig, log *logger.StyledLogger) *pool.PerServerConnectionPool {
	factory := pool.NewDialConnectionFactory(originCfg.DialerConfig())
	builder := pipeline.NewBuilder(pipeline.OutboundPipelineInitializer{
		OnLifecycle: func(evt pipeline.Event) {
			log.Debug("pipeline lifecycle event", "origin", originCfg.Name, "event", evt)
		},
	})

	onAcquire := func(conn *pool.OriginConnection) {
		// Installed once per dialed channel (a no-op on later acquires of
		// the same reused connection); only the idle stage is rebuilt on
		// every acquire, resetting its idle timer.
		conn.InstallStages(func() []pipeline.Stage {
			return builder.Build(conn.Conn(), originCfg.PoolConfig())
		})
		conn.ReinstallIdleStage(pipeline.NewIdleStage)
	}

	return pool.New(
		originCfg.Server(),
		domain.NewServerStats(),
		originCfg.PoolConfig(),
		factory,
		onAcquire,
		log,
	)
}

// maxBodySize caps the inbound request body, matching configured
// request_limits.max_body_size.
func maxBodySize(next http.Handler, limit int64) http.Handler {
	if limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}

func buildLoggerConfig(cfg *config.Config) *logger.Config {
	return &logger.Config{
		Level:      cfg.Logging.Level,
		LogDir:     cfg.Logging.LogDir,
		Theme:      cfg.Logging.Theme,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		FileOutput: cfg.Logging.FileOutput,
		PrettyLogs: cfg.Logging.PrettyLogs,
	}
}
