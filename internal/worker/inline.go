package worker

import (
	"context"
	"log/slog"
	"sync"

	"basegraph.co/distributor/internal/model"
)

// InlineQueue runs jobs on goroutines of this process. It stands in for the
// Redis stream when none is configured, so jobs do not survive a restart.
type InlineQueue struct {
	runner JobRunner
	wg     sync.WaitGroup
}

func NewInlineQueue(runner JobRunner) *InlineQueue {
	return &InlineQueue{runner: runner}
}

// Enqueue starts the job and returns immediately. The job outlives ctx's cancellation.
func (q *InlineQueue) Enqueue(ctx context.Context, job model.JobRequest) error {
	ctx = context.WithoutCancel(ctx)
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(ctx, "panic recovered in inline job", "panic", r, "job_id", job.JobID)
			}
		}()
		if _, err := q.runner.Run(ctx, job); err != nil {
			slog.ErrorContext(ctx, "inline job failed", "error", err, "job_id", job.JobID)
		}
	}()
	return nil
}

// Wait blocks until every started job has finished.
func (q *InlineQueue) Wait() {
	q.wg.Wait()
}
