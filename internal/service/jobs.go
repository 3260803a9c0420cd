package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"basegraph.co/distributor/common/logger"
	"basegraph.co/distributor/internal/jobstatus"
	"basegraph.co/distributor/internal/model"
)

var ErrUnknownJobKind = errors.New("unknown job kind")

// JobStatus is what a poller sees: the last recorded result plus live counters
// while batches are still running.
type JobStatus struct {
	Result   model.JobResult   `json:"result"`
	Progress *ProgressSnapshot `json:"progress,omitempty"`
}

// JobRunner runs queued processing and retry jobs and records their results.
type JobRunner struct {
	processing ProcessingService
	retry      RetryService
	statuses   jobstatus.Store
	progress   *ProgressTracker
}

func NewJobRunner(processing ProcessingService, retry RetryService, statuses jobstatus.Store, progress *ProgressTracker) *JobRunner {
	if progress == nil {
		progress = NewProgressTracker()
	}
	return &JobRunner{
		processing: processing,
		retry:      retry,
		statuses:   statuses,
		progress:   progress,
	}
}

// Accept records the placeholder result a caller gets back before the job runs.
func (r *JobRunner) Accept(ctx context.Context, req model.JobRequest) model.JobResult {
	result := model.NewJobResult(0, 0, 0, "Job accepted with id "+req.JobID)
	result.JobID = req.JobID
	r.record(ctx, req.JobID, result)
	return result
}

// Run executes req to completion. The error is non-nil only for requests the
// runner cannot interpret; delivery failures are reported in the result.
func (r *JobRunner) Run(ctx context.Context, req model.JobRequest) (model.JobResult, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		JobID:          logger.Ptr(req.JobID),
		ProcessingDate: logger.Ptr(model.FormatDate(req.Date)),
		Component:      "distributor.service.jobs",
	})

	date := req.Date
	var result model.JobResult
	switch req.Kind {
	case model.JobKindProcess:
		result = r.processing.ProcessEventsForDate(ctx, req.JobID, &date)
	case model.JobKindRetry:
		result = r.retry.RetryFailedEvents(ctx, req.JobID, &date)
	default:
		return model.JobResult{}, fmt.Errorf("job %s: %w %q", req.JobID, ErrUnknownJobKind, req.Kind)
	}

	result.JobID = req.JobID
	r.record(ctx, req.JobID, result)

	slog.InfoContext(ctx, "job finished",
		"kind", req.Kind,
		"success", result.SuccessCount,
		"failure", result.FailureCount,
		"total", result.TotalCount,
		"message", result.Message)
	return result, nil
}

// Status combines the stored result with live progress, if the job is still running.
func (r *JobRunner) Status(ctx context.Context, jobID string) (JobStatus, bool, error) {
	result, found, err := r.statuses.Find(ctx, jobID)
	if err != nil {
		return JobStatus{}, false, fmt.Errorf("finding job %s: %w", jobID, err)
	}

	snapshot, running := r.progress.Lookup(jobID)
	if !found && !running {
		return JobStatus{}, false, nil
	}

	status := JobStatus{Result: result}
	if !found {
		status.Result = model.JobResult{JobID: jobID, Message: "Job running with id " + jobID}
	}
	if running {
		status.Progress = &snapshot
	}
	return status, true, nil
}

func (r *JobRunner) record(ctx context.Context, jobID string, result model.JobResult) {
	if err := r.statuses.Record(context.WithoutCancel(ctx), jobID, result); err != nil {
		slog.ErrorContext(ctx, "failed to record job status", "error", err, "job_id", jobID)
	}
}
