package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"symptomcheck/internal/model"
)

// SessionCache holds the latest snapshot of every live assessment so that a
// reconnecting client can render without touching the engine
type SessionCache interface {
	SetSnapshot(ctx context.Context, assessmentID string, snap *model.Snapshot) error
	GetSnapshot(ctx context.Context, assessmentID string) (*model.Snapshot, error)
	Delete(ctx context.Context, assessmentID string) error
}

type sessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionCache(client *redis.Client, ttl time.Duration) SessionCache {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &sessionCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *sessionCache) key(assessmentID string) string {
	return fmt.Sprintf("assessment:%s:snapshot", assessmentID)
}

func (c *sessionCache) SetSnapshot(ctx context.Context, assessmentID string, snap *model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(assessmentID), data, c.ttl).Err()
}

// GetSnapshot returns nil, nil on a miss
func (c *sessionCache) GetSnapshot(ctx context.Context, assessmentID string) (*model.Snapshot, error) {
	data, err := c.client.Get(ctx, c.key(assessmentID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap model.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *sessionCache) Delete(ctx context.Context, assessmentID string) error {
	return c.client.Del(ctx, c.key(assessmentID)).Err()
}
