package obs

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// TelemetryConfig selects an OTLP collector for metric push.
type TelemetryConfig struct {
	// OTLPEndpoint is host:port or a URL; only the host part is dialed.
	// Empty disables push.
	OTLPEndpoint string
	// Insecure forces plaintext even for https endpoints.
	Insecure bool
	Interval time.Duration
	Service  string
	Version  string
}

// NewMeterProvider builds a MeterProvider that pushes over OTLP/gRPC on a
// periodic reader. It returns nil when no endpoint is configured.
func NewMeterProvider(ctx context.Context, cfg TelemetryConfig) (*sdkmetric.MeterProvider, error) {
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	if endpoint == "" {
		return nil, nil
	}

	target, insecure, err := otlpTarget(endpoint)
	if err != nil {
		return nil, err
	}
	insecure = insecure || cfg.Insecure

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.Service),
			semconv.ServiceVersionKey.String(cfg.Version),
		),
	)
	if err != nil {
		return nil, err
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(target)}
	if insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp metric exporter: %w", err)
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
	), nil
}

// otlpTarget reduces endpoint to the host:port gRPC dials and reports whether
// the scheme calls for plaintext.
func otlpTarget(endpoint string) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: missing host", endpoint)
	}
	return u.Host, u.Scheme != "https", nil
}
