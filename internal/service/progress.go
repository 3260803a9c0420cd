package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"basegraph.co/distributor/internal/model"
)

// Progress is the shared counter set for one job. A nil or disabled Progress ignores updates.
type Progress struct {
	jobID        string
	totalBatches int
	completed    atomic.Int64
	success      atomic.Int64
	failure      atomic.Int64
}

// ProgressSnapshot is a point-in-time copy of a job's counters.
type ProgressSnapshot struct {
	JobID            string `json:"job_id"`
	TotalBatches     int    `json:"total_batches"`
	CompletedBatches int64  `json:"completed_batches"`
	SuccessCount     int64  `json:"success_count"`
	FailureCount     int64  `json:"failure_count"`
}

func (p *Progress) Enabled() bool {
	return p != nil
}

func (p *Progress) Snapshot() ProgressSnapshot {
	if p == nil {
		return ProgressSnapshot{}
	}
	return ProgressSnapshot{
		JobID:            p.jobID,
		TotalBatches:     p.totalBatches,
		CompletedBatches: p.completed.Load(),
		SuccessCount:     p.success.Load(),
		FailureCount:     p.failure.Load(),
	}
}

// ProgressTracker logs per-batch completion across concurrently finishing batches
// and keeps running jobs visible to Lookup until their last batch lands.
type ProgressTracker struct {
	active sync.Map // job id -> *Progress
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{}
}

// Lookup returns the counters of a job that is still running.
func (t *ProgressTracker) Lookup(jobID string) (ProgressSnapshot, bool) {
	v, ok := t.active.Load(jobID)
	if !ok {
		return ProgressSnapshot{}, false
	}
	return v.(*Progress).Snapshot(), true
}

// Start returns nil (disabled) when there is no job id or nothing to track.
func (t *ProgressTracker) Start(ctx context.Context, jobID string, totalBatches int) *Progress {
	if jobID == "" || totalBatches <= 0 {
		return nil
	}
	slog.InfoContext(ctx, "job started", "job_id", jobID, "total_batches", totalBatches)
	p := &Progress{jobID: jobID, totalBatches: totalBatches}
	t.active.Store(jobID, p)
	return p
}

// OnBatchCompletion is safe to call from any goroutine, in any batch order.
func (t *ProgressTracker) OnBatchCompletion(ctx context.Context, p *Progress, batchNumber, batchSize int, result model.BatchResult) {
	if p == nil {
		return
	}
	completed := p.completed.Add(1)
	success := p.success.Add(int64(result.SuccessCount))
	failure := p.failure.Add(int64(result.FailureCount))

	slog.InfoContext(ctx, "batch complete",
		"job_id", p.jobID,
		"batch_number", batchNumber,
		"batch_size", batchSize,
		"batch_success", result.SuccessCount,
		"batch_failure", result.FailureCount,
		"completed_batches", completed,
		"total_batches", p.totalBatches,
		"success", success,
		"failure", failure)

	// Exactly one goroutine observes the final increment.
	if completed == int64(p.totalBatches) {
		slog.InfoContext(ctx, "job finished", "job_id", p.jobID, "success", success, "failure", failure)
		t.active.CompareAndDelete(p.jobID, p)
	}
}

// Finish drops a job from Lookup once its fan-out is drained, including jobs
// that ran fewer batches than Start was given.
func (t *ProgressTracker) Finish(ctx context.Context, p *Progress) {
	if !p.Enabled() {
		return
	}
	if !t.active.CompareAndDelete(p.jobID, p) {
		return
	}
	snap := p.Snapshot()
	slog.WarnContext(ctx, "job ended before all batches completed",
		"job_id", snap.JobID,
		"completed_batches", snap.CompletedBatches,
		"total_batches", snap.TotalBatches)
}
