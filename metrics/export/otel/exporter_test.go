package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/authcore"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() authcore.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := authcore.MetricsSnapshot{
		Counters:   make(map[authcore.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[authcore.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestExporterCollectsCountersAndBuckets(t *testing.T) {
	reader, provider := newReader(t)

	src := &fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess:  3,
				authcore.MetricRefreshReplay: 1,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricVerifyLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 2,
	}

	exp, err := NewExporter(provider.Meter("authcore-test"), src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	m, ok := findMetric(rm, "authcore_login_success_total")
	if !ok {
		t.Fatal("login success counter not collected")
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 3 {
		t.Fatalf("unexpected login success data: %+v", m.Data)
	}

	m, ok = findMetric(rm, "authcore_verify_latency_seconds_bucket")
	if !ok {
		t.Fatal("verify latency buckets not collected")
	}
	gauge, ok := m.Data.(metricdata.Gauge[int64])
	if !ok || len(gauge.DataPoints) != authcore.HistogramBucketCount {
		t.Fatalf("unexpected bucket data: %+v", m.Data)
	}
	for _, dp := range gauge.DataPoints {
		le, _ := dp.Attributes.Value("le")
		if le.AsString() == "+Inf" && dp.Value != 8 {
			t.Fatalf("+Inf bucket = %d, want 8", dp.Value)
		}
	}

	m, ok = findMetric(rm, "authcore_audit_dropped_total")
	if !ok {
		t.Fatal("audit dropped counter not collected")
	}
	if sum := m.Data.(metricdata.Sum[int64]); sum.DataPoints[0].Value != 2 {
		t.Fatalf("audit dropped = %d, want 2", sum.DataPoints[0].Value)
	}

	if _, ok := findMetric(rm, "authcore_login_latency_seconds_bucket"); ok {
		t.Fatal("histogram absent from the snapshot should not be observed")
	}
}

func TestExporterRejectsNilArguments(t *testing.T) {
	_, provider := newReader(t)

	if _, err := NewExporter(provider.Meter("authcore-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewExporter(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader(t)

	src := &fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{authcore.MetricLoginSuccess: 1},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricLoginLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewExporter(provider.Meter("authcore-test"), src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[authcore.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
