package queue

import (
	"fmt"
	"time"

	"basegraph.co/distributor/internal/model"
)

// Stream field names.
const (
	fieldKind    = "job_kind"
	fieldJobID   = "job_id"
	fieldDate    = "date"
	fieldTraceID = "trace_id"
	fieldAttempt = "attempt"
	fieldError   = "error"
	fieldLastErr = "last_error"
)

// StreamName builds the per-environment job stream name.
func StreamName(env string) string {
	return fmt.Sprintf("distributor:%s:jobs", env)
}

func jobValues(job model.JobRequest, attempt int) map[string]any {
	values := map[string]any{
		fieldKind:    string(job.Kind),
		fieldJobID:   job.JobID,
		fieldDate:    model.FormatDate(job.Date),
		fieldAttempt: attempt,
	}
	if job.TraceID != "" {
		values[fieldTraceID] = job.TraceID
	}
	return values
}

func normalizeAttempt(attempt int) int {
	if attempt <= 0 {
		return 1
	}
	return attempt
}

func parseDateField(values map[string]any) (time.Time, error) {
	raw, err := parseString(values, fieldDate)
	if err != nil {
		return time.Time{}, err
	}
	date, err := model.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", fieldDate, err)
	}
	return date, nil
}
