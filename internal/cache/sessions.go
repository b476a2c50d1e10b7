package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nextbill/gateway/internal/notify"
)

// sessionTTL bounds how long an abandoned session blob survives. Derived
// reminders older than a week are stale by definition (the reminder window
// is seven days).
const sessionTTL = 7 * 24 * time.Hour

// SessionCache persists the full notification array for a session so that
// derived-mode state survives a restart. It is a cache, not a store of
// record: a corrupt blob is discarded and the session starts empty.
type SessionCache struct {
	client *Client
	logger *zap.Logger
}

// NewSessionCache creates a session cache on top of an established client.
func NewSessionCache(client *Client, logger *zap.Logger) *SessionCache {
	return &SessionCache{client: client, logger: logger}
}

func (c *SessionCache) key(userID string) string {
	return fmt.Sprintf("notifications:%s", userID)
}

// Load restores the cached notification array for a user. A missing key
// returns (nil, nil); an unparsable blob is deleted and treated as missing
// so session startup never fails on cache garbage.
func (c *SessionCache) Load(ctx context.Context, userID string) ([]notify.Notification, error) {
	key := c.key(userID)

	val, err := c.client.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var list []notify.Notification
	if err := json.Unmarshal([]byte(val), &list); err != nil {
		c.logger.Warn("discarding corrupt notification cache",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		_ = c.client.rdb.Del(ctx, key).Err()
		return nil, nil
	}

	return list, nil
}

// Save rewrites the full notification array for a user.
func (c *SessionCache) Save(ctx context.Context, userID string, list []notify.Notification) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("marshal notifications: %w", err)
	}

	if err := c.client.rdb.Set(ctx, c.key(userID), data, sessionTTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Clear drops the cached blob for a user.
func (c *SessionCache) Clear(ctx context.Context, userID string) error {
	if err := c.client.rdb.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
