package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	usagedomain "github.com/smallbiznis/tenantguard/internal/usage/domain"
)

type repo struct {
	client    *redis.Client
	retention time.Duration
}

func Provide(client *redis.Client) usagedomain.Repository {
	return New(client, usagedomain.Retention)
}

func New(client *redis.Client, retention time.Duration) usagedomain.Repository {
	if retention <= 0 {
		retention = usagedomain.Retention
	}
	return &repo{client: client, retention: retention}
}

func (r *repo) Incr(ctx context.Context, projectID snowflake.ID, metric usagedomain.Metric, hour time.Time, delta int64) error {
	key := usagedomain.BucketKey(projectID, metric, hour)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.IncrBy(ctx, key, delta)
		pipe.Expire(ctx, key, r.retention)
		return nil
	})
	return err
}

func (r *repo) SumBuckets(ctx context.Context, projectID snowflake.ID, metric usagedomain.Metric, hours []time.Time) (int64, error) {
	if len(hours) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, len(hours))
	for _, hour := range hours {
		keys = append(keys, usagedomain.BucketKey(projectID, metric, hour))
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, err
	}

	var total int64
	for i, value := range values {
		n, err := parseCount(value)
		if err != nil {
			return 0, fmt.Errorf("bucket %s: %w", keys[i], err)
		}
		total += n
	}
	return total, nil
}

func (r *repo) SetGauge(ctx context.Context, projectID snowflake.ID, metric usagedomain.Metric, value int64) error {
	return r.client.Set(ctx, usagedomain.GaugeKey(projectID, metric), value, r.retention).Err()
}

func (r *repo) Gauge(ctx context.Context, projectID snowflake.ID, metric usagedomain.Metric) (int64, error) {
	value, err := r.client.Get(ctx, usagedomain.GaugeKey(projectID, metric)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return value, err
}

func parseCount(value any) (int64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("unexpected value %T", value)
	}
}
