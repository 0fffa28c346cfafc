package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID indexes an engine counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginThrottled
	MetricLockoutSignal
	MetricRefreshSuccess
	MetricRefreshFailure
	// MetricRefreshReplay counts refresh tokens presented after they were retired.
	MetricRefreshReplay
	MetricSessionCreated
	MetricSessionEvicted
	MetricLogout
	MetricLogoutAll
	MetricVerifySuccess
	MetricVerifyFailure
	MetricAuthorizeAllowed
	MetricAuthorizeDenied
	// MetricStoreUnavailable counts operations that failed with ErrStoreUnavailable.
	MetricStoreUnavailable

	// Latency histograms share the ID space. Their counters stay zero.
	MetricLoginLatency
	MetricRefreshLatency
	MetricVerifyLatency
	metricIDCount
)

const (
	// HistogramBucketCount is the number of latency buckets: <=5ms, 10, 25, 50,
	// 100, 250, 500 and +Inf.
	HistogramBucketCount = 8
	cacheLineSize        = 64
)

var latencyMetrics = [...]MetricID{MetricLoginLatency, MetricRefreshLatency, MetricVerifyLatency}

type metricHistogram struct {
	buckets [HistogramBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters and latency histograms.
// A nil *Metrics discards everything.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy. Histogram buckets are not cumulative.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram of id. Non-latency ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || !isLatencyMetric(id) {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, every latency histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, len(latencyMetrics)),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if isLatencyMetric(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range latencyMetrics {
			buckets := make([]uint64, HistogramBucketCount)
			for i := range buckets {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}

	return s
}

func isLatencyMetric(id MetricID) bool {
	for _, l := range latencyMetrics {
		if id == l {
			return true
		}
	}
	return false
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
