package main

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/internal/obs"
	otelexport "github.com/MrEthical07/authcore/metrics/export/otel"
	"go.uber.org/zap"
)

const meterName = "github.com/MrEthical07/authcore"

// telemetryFlushTimeout bounds the final push on shutdown.
var telemetryFlushTimeout = 5 * time.Second

// startTelemetry pushes engine metrics over OTLP when an endpoint is
// configured. The returned func unregisters the exporter and flushes.
func startTelemetry(ctx context.Context, cfg obs.TelemetryConfig, src otelexport.Source, logger *zap.Logger) (func(), error) {
	mp, err := obs.NewMeterProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if mp == nil {
		return func() {}, nil
	}

	exp, err := otelexport.NewExporter(mp.Meter(meterName), src)
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, err
	}
	logger.Info("otlp metric push enabled", zap.String("endpoint", cfg.OTLPEndpoint))

	return func() {
		_ = exp.Close()
		shCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := mp.Shutdown(shCtx); err != nil {
			logger.Warn("otel shutdown", zap.Error(err))
		}
	}, nil
}
