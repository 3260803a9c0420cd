package jobstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.co/distributor/internal/model"
)

const keyPrefix = "distributor:job-status:"

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore stores results as JSON under a per-job key. A ttl <= 0 keeps them forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Record(ctx context.Context, jobID string, result model.JobResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling job result %s: %w", jobID, err)
	}
	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key(jobID), data, ttl).Err(); err != nil {
		return fmt.Errorf("storing job result %s: %w", jobID, err)
	}
	return nil
}

func (s *RedisStore) Find(ctx context.Context, jobID string) (model.JobResult, bool, error) {
	data, err := s.client.Get(ctx, key(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.JobResult{}, false, nil
	}
	if err != nil {
		return model.JobResult{}, false, fmt.Errorf("loading job result %s: %w", jobID, err)
	}

	var result model.JobResult
	if err := json.Unmarshal(data, &result); err != nil {
		return model.JobResult{}, false, fmt.Errorf("decoding job result %s: %w", jobID, err)
	}
	return result, true, nil
}

func key(jobID string) string {
	return keyPrefix + jobID
}
