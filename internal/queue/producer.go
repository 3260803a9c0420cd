package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"basegraph.co/distributor/common/logger"
	"basegraph.co/distributor/internal/model"
)

type Producer interface {
	Enqueue(ctx context.Context, job model.JobRequest) error
}

type redisProducer struct {
	client *redis.Client
	stream string
}

func NewRedisProducer(client *redis.Client, stream string) Producer {
	return &redisProducer{
		client: client,
		stream: stream,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, job model.JobRequest) error {
	if !job.Kind.Valid() {
		return fmt.Errorf("enqueue job %s: unknown kind %q", job.JobID, job.Kind)
	}
	if job.JobID == "" {
		return fmt.Errorf("enqueue job: missing job id")
	}

	attempt := normalizeAttempt(job.Attempt)
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: jobValues(job, attempt),
	}).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.JobID, err)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		JobID:          logger.Ptr(job.JobID),
		ProcessingDate: logger.Ptr(model.FormatDate(job.Date)),
		Component:      "distributor.queue.producer",
	})
	slog.InfoContext(ctx, "enqueued job", "kind", job.Kind, "attempt", attempt, "stream", p.stream)
	return nil
}
