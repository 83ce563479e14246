package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentdesk/agentdesk/internal/model"
)

const (
	// sessionCachePrefix is the Redis key prefix for cached sessions.
	sessionCachePrefix = "session:"
	// maxSessionCacheTTL bounds how long a session lookup is trusted without the database.
	maxSessionCacheTTL = 15 * time.Minute
)

// CachedSession represents a session stored in Redis.
type CachedSession struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GetSession retrieves a cached session by ID.
// Returns nil if not found (cache miss).
func (c *Cache) GetSession(ctx context.Context, sessionID string) (*model.AuthContext, error) {
	data, err := c.client.Get(ctx, sessionCachePrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached session: %w", err)
	}

	var cached CachedSession
	if err := json.Unmarshal(data, &cached); err != nil {
		// Corrupted cache entry - treat as miss
		return nil, nil //nolint:nilerr
	}

	return &model.AuthContext{
		SessionID: sessionID,
		UserID:    cached.UserID,
		ExpiresAt: cached.ExpiresAt,
	}, nil
}

// SetSession caches an active session. Sessions that are about to expire are not cached.
func (c *Cache) SetSession(ctx context.Context, auth *model.AuthContext) error {
	ttl := SessionCacheTTL(time.Until(auth.ExpiresAt))
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(CachedSession{UserID: auth.UserID, ExpiresAt: auth.ExpiresAt})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	return c.client.Set(ctx, sessionCachePrefix+auth.SessionID, data, ttl).Err()
}

// DeleteSessions removes cached sessions. Used when sessions are revoked.
func (c *Cache) DeleteSessions(ctx context.Context, sessionIDs ...string) error {
	if len(sessionIDs) == 0 {
		return nil
	}

	keys := make([]string, len(sessionIDs))
	for i, id := range sessionIDs {
		keys[i] = sessionCachePrefix + id
	}
	return c.client.Del(ctx, keys...).Err()
}

// SessionCacheTTL caps a session's remaining lifetime at the cache window.
// Lifetimes under one second are not worth caching and yield 0.
func SessionCacheTTL(remaining time.Duration) time.Duration {
	if remaining < time.Second {
		return 0
	}
	if remaining > maxSessionCacheTTL {
		return maxSessionCacheTTL
	}
	return remaining
}
