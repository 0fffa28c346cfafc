package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/config"
	"github.com/MrEthical07/authcore/internal/obs"
	"github.com/MrEthical07/authcore/internal/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", os.Getenv("AUTHCORE_CONFIG"), "path to a YAML config file")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := obs.NewLogger(cfg.LoggerConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting authd", zap.String("env", cfg.App.Env), zap.String("ver", cfg.App.Version))

	// redis
	rdb := redis.NewClient(cfg.Redis.Options())
	defer func() { _ = rdb.Close() }()
	pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable at startup", zap.Error(err))
	}
	cancel()

	// user directory
	dir, err := users.Open(cfg.DB.DSN, cfg.DB.Pool())
	if err != nil {
		logger.Fatal("db open", zap.Error(err))
	}
	defer func() { _ = dir.Close() }()

	// metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine, err := authcore.New().
		WithConfig(cfg.Engine()).
		WithRedis(rdb).
		WithUserProvider(dir).
		WithLogger(logger).
		WithAuditSink(authcore.ZapAuditSink(logger)).
		WithMetricsRegisterer(reg).
		Build()
	if err != nil {
		logger.Fatal("engine build", zap.Error(err))
	}
	defer engine.Close()

	stopTelemetry, err := startTelemetry(rootCtx, cfg.TelemetryConfig(), engine, logger)
	if err != nil {
		logger.Fatal("otel metrics", zap.Error(err))
	}
	defer stopTelemetry()

	handler := buildRouter(engine, reg, cfg.HTTPConfig(), logger, map[string]obs.HealthCheck{
		"redis":    engine.Ping,
		"postgres": dir.Ping,
	})

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", zap.Error(err))
		}
	}

	shCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	logger.Info("bye")
}
