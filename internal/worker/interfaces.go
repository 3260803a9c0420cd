package worker

import (
	"context"

	"basegraph.co/distributor/internal/model"
	"basegraph.co/distributor/internal/queue"
)

// Consumer abstracts the job stream for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// JobRunner executes one processing or retry job. Mirrors service.JobRunner.
type JobRunner interface {
	Run(ctx context.Context, req model.JobRequest) (model.JobResult, error)
}
