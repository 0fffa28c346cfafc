package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Backoff interface {
	Next(attempt int) time.Duration
}

// ExpoJitter doubles Base on every attempt up to Max and spreads each wait by ±Jitter.
type ExpoJitter struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

func (b ExpoJitter) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(b.Base) * math.Pow(2, float64(attempt))
	if b.Max > 0 && time.Duration(d) > b.Max {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		d *= 1 + (rand.Float64()*2-1)*b.Jitter
	}
	return time.Duration(d)
}

type Policy struct {
	Name      string
	Attempts  int
	Backoff   Backoff
	Retryable func(error) bool
	OnAttempt func(attempt int, err error)
	OnExhaust func(lastErr error)
	Metrics   *Metrics
}

// Metrics groups the retry collectors. A nil *Metrics records nothing.
type Metrics struct {
	attempts  *prometheus.CounterVec
	exhausted *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

// NewMetrics creates the retry collectors and registers them with reg.
// A nil reg yields working but unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_retry_attempts_total",
			Help: "Total retry attempts (including final).",
		}, []string{"name"}),
		exhausted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "authcore_retry_exhausted_total",
			Help: "Operations that exhausted all retries or hit a non-retryable error.",
		}, []string{"name"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authcore_retry_duration_seconds",
			Help:    "Total time spent inside retry.Do (success or fail).",
			Buckets: prometheus.DefBuckets,
		}, []string{"name"}),
	}
}

func (m *Metrics) attempt(name string) {
	if m != nil {
		m.attempts.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) exhaust(name string) {
	if m != nil {
		m.exhausted.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) observe(name string, start time.Time) {
	if m != nil {
		m.latency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempt
// budget is spent, or ctx is done.
func Do(ctx context.Context, fn func() error, p Policy) error {
	start := time.Now()
	name := p.Name
	if name == "" {
		name = "default"
	}
	defer p.Metrics.observe(name, start)

	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	isRetryable := p.Retryable
	if isRetryable == nil {
		isRetryable = func(err error) bool { return err != nil }
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = ExpoJitter{Base: 10 * time.Millisecond, Max: 200 * time.Millisecond}
	}

	var err error
	span := trace.SpanFromContext(ctx)

	for i := 0; i < attempts; i++ {
		err = fn()
		p.Metrics.attempt(name)
		if err == nil {
			return nil
		}
		if p.OnAttempt != nil {
			p.OnAttempt(i, err)
		}
		if span.IsRecording() {
			span.AddEvent("retry.attempt", trace.WithAttributes(
				attribute.String("retry.name", name),
				attribute.Int("retry.attempt", i+1),
			))
		}
		if !isRetryable(err) || i == attempts-1 {
			p.Metrics.exhaust(name)
			if p.OnExhaust != nil && !errors.Is(err, context.Canceled) {
				p.OnExhaust(err)
			}
			return err
		}

		t := time.NewTimer(backoff.Next(i))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}
