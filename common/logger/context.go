package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Set them once where a job, batch or event comes into scope; every log statement below
// that point picks them up through the TraceHandler.
type LogFields struct {
	JobID          *string // Dispatch or retry job id
	ProcessingDate *string // YYYY-MM-DD the job is processing
	SignalID       *int64
	UabsEventID    *int64
	BatchNumber    *int
	Component      string // Component name (OTel semantic convention style, e.g., "distributor.delivery.client")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.JobID != nil {
		result.JobID = next.JobID
	}
	if next.ProcessingDate != nil {
		result.ProcessingDate = next.ProcessingDate
	}
	if next.SignalID != nil {
		result.SignalID = next.SignalID
	}
	if next.UabsEventID != nil {
		result.UabsEventID = next.UabsEventID
	}
	if next.BatchNumber != nil {
		result.BatchNumber = next.BatchNumber
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{JobID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
