package permission

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultCacheTTL bounds how long a cached decision can outlive a role change.
	DefaultCacheTTL = 15 * time.Minute

	allow = "allow"
	deny  = "deny"
)

// Cache memoizes RoleTable decisions per subject, role and requirement set.
type Cache struct {
	redis  redis.UniversalClient
	keys   session.Keys
	table  *RoleTable
	ttl    time.Duration
	logger *zap.Logger
}

// NewCache returns a decision cache. A nil logger discards cache errors.
func NewCache(rdb redis.UniversalClient, keys session.Keys, table *RoleTable, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{redis: rdb, keys: keys, table: table, ttl: ttl, logger: logger}
}

// Table returns the backing role table.
func (c *Cache) Table() *RoleTable {
	return c.table
}

// IsAllowed returns the cached decision or computes and stores it. Cache
// failures are logged and never change the outcome.
func (c *Cache) IsAllowed(ctx context.Context, subjectID, role string, required []string) bool {
	if len(required) == 0 {
		return true
	}

	key := c.keys.Authz(subjectID, role, required)
	cached, err := c.redis.Get(ctx, key).Result()
	switch {
	case err == nil && (cached == allow || cached == deny):
		return cached == allow
	case err != nil && !errors.Is(err, redis.Nil):
		c.logger.Warn("authz cache read failed", zap.String("subject", subjectID), zap.Error(err))
	}

	allowed := c.table.Decide(role, required)
	value := deny
	if allowed {
		value = allow
	}
	if err := c.redis.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.Warn("authz cache write failed", zap.String("subject", subjectID), zap.Error(err))
	}
	return allowed
}

// Invalidate drops every cached decision for subjectID and returns how many
// entries were removed.
func (c *Cache) Invalidate(ctx context.Context, subjectID string) (int, error) {
	pattern := c.keys.AuthzSubjectPattern(subjectID)

	var removed int
	iter := c.redis.Scan(ctx, 0, pattern, 100).Iterator()
	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			n, err := c.redis.Del(ctx, batch...).Result()
			if err != nil {
				return removed, err
			}
			removed += int(n)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	if len(batch) > 0 {
		n, err := c.redis.Del(ctx, batch...).Result()
		if err != nil {
			return removed, err
		}
		removed += int(n)
	}
	return removed, nil
}
