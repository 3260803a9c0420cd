package model

import "time"

type BatchResult struct {
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
}

func (b BatchResult) Total() int {
	return b.SuccessCount + b.FailureCount
}

// Merge sums two results.
func (b BatchResult) Merge(other BatchResult) BatchResult {
	return BatchResult{
		SuccessCount: b.SuccessCount + other.SuccessCount,
		FailureCount: b.FailureCount + other.FailureCount,
	}
}

func BatchResultFromBools(outcomes []bool) BatchResult {
	var r BatchResult
	for _, ok := range outcomes {
		if ok {
			r.SuccessCount++
		} else {
			r.FailureCount++
		}
	}
	return r
}

// JobResult is the summary of one processing or retry run.
type JobResult struct {
	JobID        string    `json:"job_id,omitempty"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	TotalCount   int64     `json:"total_count"`
	Timestamp    time.Time `json:"timestamp"`
	Message      string    `json:"message"`
}

func NewJobResult(success, failure int, total int64, message string) JobResult {
	return JobResult{
		SuccessCount: success,
		FailureCount: failure,
		TotalCount:   total,
		Timestamp:    time.Now().UTC(),
		Message:      message,
	}
}

// JobKind names the service an asynchronous job runs.
type JobKind string

const (
	JobKindProcess JobKind = "process"
	JobKindRetry   JobKind = "retry"
)

func (k JobKind) Valid() bool {
	return k == JobKindProcess || k == JobKindRetry
}

// JobRequest is a queued processing or retry run for one date.
type JobRequest struct {
	Kind    JobKind
	JobID   string
	Date    time.Time
	TraceID string
	Attempt int
}
