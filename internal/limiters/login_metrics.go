package limiters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/authcore/session"
	"github.com/redis/go-redis/v9"
)

const (
	fieldFailed     = "failedAttempts"
	fieldLastTry    = "lastAttempt"
	fieldLastLogin  = "lastLogin"
	fieldSuccessful = "successfulLogins"

	// DefaultRetention is how long an idle identifier's metrics are kept.
	DefaultRetention = 30 * 24 * time.Hour
)

// ErrMetricsUnavailable indicates the metrics backend is unreachable.
var ErrMetricsUnavailable = errors.New("login metrics backend unavailable")

// MetricsConfig configures LoginMetrics. FailureAlertThreshold <= 0 disables the signal.
type MetricsConfig struct {
	Retention             time.Duration
	FailureAlertThreshold int
}

// Record is the stored view of one identifier.
type Record struct {
	FailedAttempts   int
	SuccessfulLogins int
	LastAttempt      time.Time
	LastLogin        time.Time
	// LockoutSignal is set on the failure that brings FailedAttempts to the
	// threshold, and only on that one.
	LockoutSignal bool
}

// LoginMetrics records login outcomes per identifier.
type LoginMetrics struct {
	redis  redis.UniversalClient
	keys   session.Keys
	config MetricsConfig
	now    func() time.Time
}

// NewLoginMetrics creates a LoginMetrics recorder.
func NewLoginMetrics(redisClient redis.UniversalClient, keys session.Keys, cfg MetricsConfig) *LoginMetrics {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	return &LoginMetrics{redis: redisClient, keys: keys, config: cfg, now: time.Now}
}

// RecordAttempt updates the counters for identifier. A success resets the
// consecutive-failure count.
func (m *LoginMetrics) RecordAttempt(ctx context.Context, identifier string, success bool) (Record, error) {
	if m == nil || identifier == "" {
		return Record{}, nil
	}

	key := m.keys.LoginMetrics(identifier)
	now := m.now().UnixMilli()

	var all *redis.MapStringStringCmd
	_, err := m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if success {
			pipe.HSet(ctx, key, fieldFailed, 0, fieldLastTry, now, fieldLastLogin, now)
			pipe.HIncrBy(ctx, key, fieldSuccessful, 1)
		} else {
			pipe.HIncrBy(ctx, key, fieldFailed, 1)
			pipe.HSet(ctx, key, fieldLastTry, now)
		}
		pipe.Expire(ctx, key, m.config.Retention)
		all = pipe.HGetAll(ctx, key)
		return nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMetricsUnavailable, err)
	}

	rec := parseRecord(all.Val())
	if !success && m.config.FailureAlertThreshold > 0 && rec.FailedAttempts == m.config.FailureAlertThreshold {
		rec.LockoutSignal = true
	}
	return rec, nil
}

// Get returns the stored metrics for identifier. Unknown identifiers read as a zero Record.
func (m *LoginMetrics) Get(ctx context.Context, identifier string) (Record, error) {
	if m == nil || identifier == "" {
		return Record{}, nil
	}

	fields, err := m.redis.HGetAll(ctx, m.keys.LoginMetrics(identifier)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, nil
		}
		return Record{}, fmt.Errorf("%w: %v", ErrMetricsUnavailable, err)
	}
	return parseRecord(fields), nil
}

func parseRecord(fields map[string]string) Record {
	return Record{
		FailedAttempts:   atoi(fields[fieldFailed]),
		SuccessfulLogins: atoi(fields[fieldSuccessful]),
		LastAttempt:      millis(fields[fieldLastTry]),
		LastLogin:        millis(fields[fieldLastLogin]),
	}
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func millis(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(n)
}
