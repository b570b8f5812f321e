package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"symptomcheck/internal/model"
)

// OptionsCache handles Redis operations for AI-generated answer options
type OptionsCache interface {
	SetOptions(ctx context.Context, assessmentID, questionID string, opts []model.Option) error
	GetOptions(ctx context.Context, assessmentID, questionID string) ([]model.Option, error)
	DeleteAll(ctx context.Context, assessmentID string) error
}

type optionsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewOptionsCache creates a new options cache
func NewOptionsCache(client *redis.Client) OptionsCache {
	return &optionsCache{
		client: client,
		ttl:    6 * time.Hour,
	}
}

func (c *optionsCache) key(assessmentID, questionID string) string {
	return fmt.Sprintf("assessment:%s:q:%s:options", assessmentID, questionID)
}

func (c *optionsCache) SetOptions(ctx context.Context, assessmentID, questionID string, opts []model.Option) error {
	data, err := json.Marshal(opts)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(assessmentID, questionID), data, c.ttl).Err()
}

// GetOptions returns nil, nil on a miss
func (c *optionsCache) GetOptions(ctx context.Context, assessmentID, questionID string) ([]model.Option, error) {
	data, err := c.client.Get(ctx, c.key(assessmentID, questionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var opts []model.Option
	if err := json.Unmarshal([]byte(data), &opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// DeleteAll drops every cached option list of an assessment
func (c *optionsCache) DeleteAll(ctx context.Context, assessmentID string) error {
	pattern := fmt.Sprintf("assessment:%s:q:*:options", assessmentID)
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
