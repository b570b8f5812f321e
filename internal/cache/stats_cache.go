package cache

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"symptomcheck/internal/model"
)

// StatsCache keeps running outcome counters across all assessments
type StatsCache interface {
	RecordOutcome(ctx context.Context, outcome model.Outcome, responses int) error
	GetStats(ctx context.Context) (*model.OutcomeStats, error)
}

type statsCache struct {
	client *redis.Client
}

// NewStatsCache creates a new stats cache
func NewStatsCache(client *redis.Client) StatsCache {
	return &statsCache{client: client}
}

const (
	statsKey            = "stats:outcomes"
	statsFieldResponses = "responses"
)

func (c *statsCache) RecordOutcome(ctx context.Context, outcome model.Outcome, responses int) error {
	pipe := c.client.TxPipeline()
	pipe.HIncrBy(ctx, statsKey, string(outcome), 1)
	pipe.HIncrBy(ctx, statsKey, statsFieldResponses, int64(responses))
	_, err := pipe.Exec(ctx)
	return err
}

func (c *statsCache) GetStats(ctx context.Context) (*model.OutcomeStats, error) {
	fields, err := c.client.HGetAll(ctx, statsKey).Result()
	if err != nil {
		return nil, err
	}

	parse := func(name string) int64 {
		n, _ := strconv.ParseInt(fields[name], 10, 64)
		return n
	}
	stats := &model.OutcomeStats{
		Completed:      parse(string(model.OutcomeCompleted)),
		Emergency:      parse(string(model.OutcomeEmergency)),
		TotalResponses: parse(statsFieldResponses),
	}
	if total := stats.Completed + stats.Emergency; total > 0 {
		stats.AverageResponses = float64(stats.TotalResponses) / float64(total)
	}
	return stats, nil
}
