package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"basegraph.co/distributor/common/logger"
	"basegraph.co/distributor/internal/model"
	"basegraph.co/distributor/internal/store"
)

// RetryService re-sends the events whose latest delivery on a date did not succeed.
type RetryService interface {
	RetryFailedEvents(ctx context.Context, jobID string, date *time.Time) model.JobResult
}

type retryService struct {
	audits     store.AuditStore
	events     store.SignalEventStore
	batches    BatchSubmitter
	progress   *ProgressTracker
	batchSize  int
	consumerID int64
}

func NewRetryService(
	audits store.AuditStore,
	events store.SignalEventStore,
	batches BatchSubmitter,
	progress *ProgressTracker,
	batchSize int,
	consumerID int64,
) RetryService {
	if progress == nil {
		progress = NewProgressTracker()
	}
	return &retryService{
		audits:     audits,
		events:     events,
		batches:    batches,
		progress:   progress,
		batchSize:  max(1, batchSize),
		consumerID: consumerID,
	}
}

func (s *retryService) RetryFailedEvents(ctx context.Context, jobID string, date *time.Time) model.JobResult {
	if jobID == "" {
		jobID = "retry-" + uuid.NewString()
	}
	withID := func(r model.JobResult) model.JobResult {
		r.JobID = jobID
		return r
	}
	if date == nil {
		return withID(model.NewJobResult(0, 0, 0, "Date is required"))
	}
	target := model.Date(*date)
	day := model.FormatDate(target)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		JobID:          &jobID,
		ProcessingDate: &day,
		Component:      "distributor.service.retry",
	})
	sc := logger.StartSpan(ctx, "retry.run")
	defer sc.End()
	ctx = sc.Context()

	failedIDs, err := s.audits.FailedEventIDsForDate(ctx, target, s.consumerID)
	if err != nil {
		sc.RecordError(err)
		slog.ErrorContext(ctx, "listing failed events", "error", err)
		return withID(model.NewJobResult(0, 0, 0, fmt.Sprintf("Retry failed for %s: %v", day, err)))
	}
	ids := distinct(failedIDs)
	if len(ids) == 0 {
		return withID(model.NewJobResult(0, 0, 0, "No failed events to retry for "+day))
	}

	found, err := s.events.ListByIDs(ctx, ids)
	if err != nil {
		sc.RecordError(err)
		slog.ErrorContext(ctx, "loading failed events", "error", err)
		return withID(model.NewJobResult(0, 0, int64(len(ids)), fmt.Sprintf("Retry failed for %s: %v", day, err)))
	}

	toSend := dedupeByID(found)
	missing := len(ids) - len(toSend)
	if len(toSend) == 0 {
		return withID(model.NewJobResult(0, missing, int64(len(ids)),
			"Failed audit entries found but no matching signal events for "+day))
	}
	slices.SortStableFunc(toSend, model.CompareByRecordTime)

	chunks := chunk(toSend, s.batchSize)
	slog.InfoContext(ctx, "starting retry", "events", len(toSend), "batches", len(chunks), "missing", missing)

	fan := startFanOut(ctx, s.batches, s.progress, jobID, len(chunks))
	for _, c := range chunks {
		fan.submit(c)
	}
	res := fan.wait()

	msg := "Retry complete for " + day
	if missing > 0 {
		msg += fmt.Sprintf(" | missing=%d", missing)
	}
	result := withID(model.NewJobResult(res.SuccessCount, res.FailureCount+missing, int64(len(ids)), msg))

	slog.InfoContext(ctx, "retry finished",
		"success", result.SuccessCount,
		"failure", result.FailureCount,
		"missing", missing)
	return result
}

func distinct(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func dedupeByID(events []model.SignalEvent) []model.SignalEvent {
	seen := make(map[int64]struct{}, len(events))
	out := make([]model.SignalEvent, 0, len(events))
	for _, e := range events {
		if _, ok := seen[e.UabsEventID]; ok {
			continue
		}
		seen[e.UabsEventID] = struct{}{}
		out = append(out, e)
	}
	return out
}
