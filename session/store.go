package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/internal/retry"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrUnavailable wraps every driver or connectivity failure.
	ErrUnavailable = errors.New("session store unavailable")
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("session key not found")
)

// RetireStatus is the outcome of [Store.Retire].
type RetireStatus int

const (
	// RetireOK means this caller blacklisted the token and removed its record.
	RetireOK RetireStatus = iota
	// RetireAlreadyRevoked means the token was already blacklisted.
	RetireAlreadyRevoked
	// RetireNotFound means no record existed for the token.
	RetireNotFound
)

func (s RetireStatus) String() string {
	switch s {
	case RetireOK:
		return "ok"
	case RetireAlreadyRevoked:
		return "already_revoked"
	case RetireNotFound:
		return "not_found"
	default:
		return fmt.Sprintf("retire_status(%d)", int(s))
	}
}

// retireScript is a check-and-set over the record and its blacklist entry.
// Exactly one concurrent caller sees status 0 for a given token.
//
// KEYS: 1 record, 2 blacklist, 3 index. ARGV: 1 member, 2 revokedAt, 3 ttl ms.
const retireScript = `
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 1
end
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 2
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
redis.call("DEL", KEYS[1])
redis.call("LREM", KEYS[3], 0, ARGV[1])
return 0
`

var retireLua = redis.NewScript(retireScript)

// evictScript pops entries from the head of the list until it holds at most ARGV[1].
const evictScript = `
local max = tonumber(ARGV[1])
local len = redis.call("LLEN", KEYS[1])
local out = {}
while len > max do
  local v = redis.call("LPOP", KEYS[1])
  if not v then
    break
  end
  out[#out + 1] = v
  len = len - 1
end
return out
`

var evictLua = redis.NewScript(evictScript)

// Options tunes a Store.
type Options struct {
	Namespace     string
	RetryAttempts int
	RetryBackoff  retry.Backoff
	RetryMetrics  *retry.Metrics
}

// Store wraps a Redis client with the primitives the session lifecycle needs.
// Idempotent calls are retried on connectivity errors; Lua scripts and list
// appends are not, because a retry after a lost reply would observe its own write.
type Store struct {
	redis  redis.UniversalClient
	keys   Keys
	policy retry.Policy
}

// NewStore creates a Store over rdb.
func NewStore(rdb redis.UniversalClient, opts Options) *Store {
	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := opts.RetryBackoff
	if backoff == nil {
		backoff = retry.ExpoJitter{Base: 20 * time.Millisecond, Max: 250 * time.Millisecond, Jitter: 0.2}
	}

	return &Store{
		redis: rdb,
		keys:  Keys{Namespace: opts.Namespace},
		policy: retry.Policy{
			Attempts:  attempts,
			Backoff:   backoff,
			Retryable: retryable,
			Metrics:   opts.RetryMetrics,
		},
	}
}

// Keys returns the key builder bound to this store's namespace.
func (s *Store) Keys() Keys {
	return s.keys
}

func retryable(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rerr redis.Error
	return !errors.As(err, &rerr)
}

func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	p := s.policy
	p.Name = "session." + op
	return retry.Do(ctx, fn, p)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Put stores value under key with an expiry (SET ... EX).
func (s *Store) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	err := s.withRetry(ctx, "put", func() error {
		return s.redis.Set(ctx, key, value, ttl).Err()
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// Get returns the value under key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.withRetry(ctx, "get", func() error {
		var err error
		out, err = s.redis.Get(ctx, key).Bytes()
		return err
	})
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrNotFound
	case err != nil:
		return nil, unavailable(err)
	}
	return out, nil
}

// Delete removes keys. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := s.withRetry(ctx, "delete", func() error {
		return s.redis.Del(ctx, keys...).Err()
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := s.withRetry(ctx, "exists", func() error {
		var err error
		n, err = s.redis.Exists(ctx, key).Result()
		return err
	})
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

// ListAppend pushes value to the tail of the list at key and refreshes the
// list's expiry in the same MULTI. It returns the new length.
func (s *Store) ListAppend(ctx context.Context, key, value string, ttl time.Duration) (int64, error) {
	var push *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		push = pipe.RPush(ctx, key, value)
		if ttl > 0 {
			pipe.PExpire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return 0, unavailable(err)
	}
	return push.Val(), nil
}

// ListEvictOldest atomically trims the list at key to max entries from the
// head and returns what it removed, oldest first.
func (s *Store) ListEvictOldest(ctx context.Context, key string, max int) ([]string, error) {
	if max < 0 {
		max = 0
	}
	evicted, err := evictLua.Run(ctx, s.redis, []string{key}, max).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}
	return evicted, nil
}

// ListRemove deletes every occurrence of member from the list at key.
func (s *Store) ListRemove(ctx context.Context, key, member string) error {
	err := s.withRetry(ctx, "list_remove", func() error {
		return s.redis.LRem(ctx, key, 0, member).Err()
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// ListMembers returns the list at key in insertion order.
func (s *Store) ListMembers(ctx context.Context, key string) ([]string, error) {
	var out []string
	err := s.withRetry(ctx, "list_members", func() error {
		var err error
		out, err = s.redis.LRange(ctx, key, 0, -1).Result()
		return err
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}
	return out, nil
}

// Retire blacklists a token and deletes its record and index entry in one
// step, unless the token is already blacklisted or has no record.
// ttl is clamped to at least one millisecond.
func (s *Store) Retire(ctx context.Context, recordKey, blacklistKey, indexKey, member string, revokedAt time.Time, ttl time.Duration) (RetireStatus, error) {
	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	code, err := retireLua.Run(ctx, s.redis,
		[]string{recordKey, blacklistKey, indexKey},
		member, revokedAt.Unix(), ms,
	).Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	switch code {
	case 0:
		return RetireOK, nil
	case 1:
		return RetireAlreadyRevoked, nil
	case 2:
		return RetireNotFound, nil
	default:
		return 0, fmt.Errorf("%w: unexpected retire status %d", ErrUnavailable, code)
	}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}
