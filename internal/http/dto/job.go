package dto

import (
	"time"

	"basegraph.co/distributor/internal/model"
	"basegraph.co/distributor/internal/service"
)

type JobDateQuery struct {
	Date string `form:"date" binding:"required"`
}

type JobProgress struct {
	TotalBatches     int   `json:"total_batches"`
	CompletedBatches int64 `json:"completed_batches"`
	SuccessCount     int64 `json:"success_count"`
	FailureCount     int64 `json:"failure_count"`
}

type JobResponse struct {
	JobID        string       `json:"job_id"`
	SuccessCount int          `json:"success_count"`
	FailureCount int          `json:"failure_count"`
	TotalCount   int64        `json:"total_count"`
	Timestamp    time.Time    `json:"timestamp"`
	Message      string       `json:"message"`
	Progress     *JobProgress `json:"progress,omitempty"`
}

func JobFromResult(r model.JobResult) JobResponse {
	return JobResponse{
		JobID:        r.JobID,
		SuccessCount: r.SuccessCount,
		FailureCount: r.FailureCount,
		TotalCount:   r.TotalCount,
		Timestamp:    r.Timestamp,
		Message:      r.Message,
	}
}

func JobFromStatus(s service.JobStatus) JobResponse {
	resp := JobFromResult(s.Result)
	if s.Progress != nil {
		resp.Progress = &JobProgress{
			TotalBatches:     s.Progress.TotalBatches,
			CompletedBatches: s.Progress.CompletedBatches,
			SuccessCount:     s.Progress.SuccessCount,
			FailureCount:     s.Progress.FailureCount,
		}
	}
	return resp
}
