package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiterTest(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return New(rdb, session.Keys{}, cfg), mr
}

func TestTryConsumeDeniesAfterMax(t *testing.T) {
	l, mr := newLimiterTest(t, Config{MaxAttempts: 5, Window: 15 * time.Minute})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		dec, err := l.TryConsume(ctx, "alice@example.com", "")
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if !dec.Allowed {
			t.Fatalf("attempt %d should be allowed", i)
		}
		if dec.Remaining != 5-i {
			t.Fatalf("attempt %d: expected remaining %d, got %d", i, 5-i, dec.Remaining)
		}
	}

	dec, err := l.TryConsume(ctx, "alice@example.com", "")
	if err != nil {
		t.Fatalf("attempt 6: %v", err)
	}
	if dec.Allowed {
		t.Fatal("attempt 6 should be denied")
	}
	if dec.RetryAfter <= 0 || dec.RetryAfter > 15*time.Minute {
		t.Fatalf("unexpected RetryAfter %v", dec.RetryAfter)
	}

	if ttl := mr.TTL("login_attempts:alice@example.com"); ttl != 15*time.Minute {
		t.Fatalf("window must not slide on later hits, TTL=%v", ttl)
	}

	mr.FastForward(15*time.Minute + time.Second)
	dec, err = l.TryConsume(ctx, "alice@example.com", "")
	if err != nil || !dec.Allowed {
		t.Fatalf("expected re-admission after window: %+v %v", dec, err)
	}
}

func TestTryConsumeIsolatesIdentifiers(t *testing.T) {
	l, _ := newLimiterTest(t, Config{MaxAttempts: 1, Window: time.Minute})
	ctx := context.Background()

	if dec, _ := l.TryConsume(ctx, "a", ""); !dec.Allowed {
		t.Fatal("first attempt for a should pass")
	}
	if dec, _ := l.TryConsume(ctx, "a", ""); dec.Allowed {
		t.Fatal("second attempt for a should be denied")
	}
	if dec, _ := l.TryConsume(ctx, "b", ""); !dec.Allowed {
		t.Fatal("b has its own quota")
	}
}

func TestTryConsumeIPQuota(t *testing.T) {
	l, _ := newLimiterTest(t, Config{MaxAttempts: 10, MaxIPAttempts: 2, Window: time.Minute})
	ctx := context.Background()

	for i, id := range []string{"a", "b"} {
		if dec, err := l.TryConsume(ctx, id, "10.0.0.1"); err != nil || !dec.Allowed {
			t.Fatalf("attempt %d: %+v %v", i, dec, err)
		}
	}
	dec, err := l.TryConsume(ctx, "c", "10.0.0.1")
	if err != nil {
		t.Fatalf("attempt 3: %v", err)
	}
	if dec.Allowed || dec.Remaining != 0 {
		t.Fatalf("address quota should deny: %+v", dec)
	}
	if dec, _ := l.TryConsume(ctx, "c", "10.0.0.2"); !dec.Allowed {
		t.Fatal("another address is unaffected")
	}
}

func TestAttemptsAndReset(t *testing.T) {
	l, _ := newLimiterTest(t, Config{MaxAttempts: 3, MaxIPAttempts: 3, Window: time.Minute})
	ctx := context.Background()

	if n, err := l.Attempts(ctx, "a"); err != nil || n != 0 {
		t.Fatalf("expected zero attempts: %d %v", n, err)
	}
	_, _ = l.TryConsume(ctx, "a", "1.1.1.1")
	_, _ = l.TryConsume(ctx, "a", "1.1.1.1")
	if n, _ := l.Attempts(ctx, "a"); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
	if err := l.Reset(ctx, "a", "1.1.1.1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n, _ := l.Attempts(ctx, "a"); n != 0 {
		t.Fatalf("expected reset counter, got %d", n)
	}
}

func TestTryConsumeUnavailable(t *testing.T) {
	l, mr := newLimiterTest(t, Config{MaxAttempts: 3, Window: time.Minute})
	mr.Close()

	if _, err := l.TryConsume(context.Background(), "a", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestRetryAfterRepairsMissingExpiry(t *testing.T) {
	l, mr := newLimiterTest(t, Config{MaxAttempts: 1, Window: time.Minute})
	ctx := context.Background()

	if err := mr.Set("login_attempts:a", "5"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	dec, err := l.TryConsume(ctx, "a", "")
	if err != nil || dec.Allowed {
		t.Fatalf("expected denial: %+v %v", dec, err)
	}
	if ttl := mr.TTL("login_attempts:a"); ttl != time.Minute {
		t.Fatalf("expected expiry to be restored, got %v", ttl)
	}
}
