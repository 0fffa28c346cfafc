package authcore

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsCountersAndHistograms(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Inc(MetricLoginSuccess)
			}
		}()
	}
	wg.Wait()

	m.Observe(MetricVerifyLatency, 2*time.Millisecond)
	m.Observe(MetricVerifyLatency, 40*time.Millisecond)
	m.Observe(MetricVerifyLatency, time.Second)
	m.Observe(MetricLoginSuccess, time.Millisecond)

	snap := m.Snapshot()
	if snap.Counters[MetricLoginSuccess] != 800 {
		t.Fatalf("expected 800, got %d", snap.Counters[MetricLoginSuccess])
	}
	if _, ok := snap.Counters[MetricVerifyLatency]; ok {
		t.Fatal("latency ids must not appear as counters")
	}
	h := snap.Histograms[MetricVerifyLatency]
	if len(h) != HistogramBucketCount || h[0] != 1 || h[3] != 1 || h[7] != 1 {
		t.Fatalf("unexpected buckets %v", h)
	}
	if len(snap.Histograms) != 3 {
		t.Fatalf("expected 3 histograms, got %d", len(snap.Histograms))
	}
}

func TestMetricsDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false, EnableLatencyHistograms: true})
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricLoginLatency, time.Millisecond)
	if m.Value(MetricLoginSuccess) != 0 || m.LatencyEnabled() {
		t.Fatal("disabled metrics must not record")
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("disabled snapshot should be empty")
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLoginSuccess)
	if nilMetrics.Enabled() {
		t.Fatal("nil metrics is disabled")
	}
}

func TestBucketIndex(t *testing.T) {
	cases := map[time.Duration]int{
		0:                      0,
		5 * time.Millisecond:   0,
		6 * time.Millisecond:   1,
		25 * time.Millisecond:  2,
		100 * time.Millisecond: 4,
		250 * time.Millisecond: 5,
		499 * time.Millisecond: 6,
		2 * time.Second:        7,
	}
	for d, want := range cases {
		if got := bucketIndex(d); got != want {
			t.Fatalf("bucketIndex(%v) = %d, want %d", d, got, want)
		}
	}
}
