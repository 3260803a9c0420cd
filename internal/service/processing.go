package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"basegraph.co/distributor/common/logger"
	"basegraph.co/distributor/internal/model"
	"basegraph.co/distributor/internal/store"
)

// BatchSubmitter delivers one batch and reports how many events made it.
type BatchSubmitter interface {
	SubmitBatch(ctx context.Context, events []model.SignalEvent) model.BatchResult
}

// ReportPublisher receives the summary of a finished run.
type ReportPublisher interface {
	Publish(ctx context.Context, report model.DeliveryReport) error
}

type ProcessingConfig struct {
	BatchSize   int
	Eligibility store.EligibilityFilter
}

// ProcessingService runs a full delivery for one processing date.
type ProcessingService interface {
	// ProcessEventsForDate never returns an error; every failure ends up in the result message.
	ProcessEventsForDate(ctx context.Context, jobID string, date *time.Time) model.JobResult
}

type processingService struct {
	events    store.SignalEventStore
	validator PrerequisiteValidator
	selector  DispatchSelector
	batches   BatchSubmitter
	progress  *ProgressTracker
	reports   ReportPublisher
	batchSize int
	filter    store.EligibilityFilter
}

func NewProcessingService(
	events store.SignalEventStore,
	validator PrerequisiteValidator,
	selector DispatchSelector,
	batches BatchSubmitter,
	progress *ProgressTracker,
	reports ReportPublisher,
	cfg ProcessingConfig,
) ProcessingService {
	if progress == nil {
		progress = NewProgressTracker()
	}
	return &processingService{
		events:    events,
		validator: validator,
		selector:  selector,
		batches:   batches,
		progress:  progress,
		reports:   reports,
		batchSize: max(1, cfg.BatchSize),
		filter:    cfg.Eligibility,
	}
}

func (s *processingService) ProcessEventsForDate(ctx context.Context, jobID string, date *time.Time) model.JobResult {
	if date == nil {
		return s.result(jobID, model.NewJobResult(0, 0, 0, "Date is required"))
	}
	target := model.Date(*date)
	day := model.FormatDate(target)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		JobID:          &jobID,
		ProcessingDate: &day,
		Component:      "distributor.service.processing",
	})
	sc := logger.StartSpan(ctx, "processing.run")
	defer sc.End()
	ctx = sc.Context()

	ok, msg, err := s.validator.Validate(ctx, target)
	if err != nil {
		sc.RecordError(err)
		slog.ErrorContext(ctx, "prerequisite validation failed", "error", err)
		return s.result(jobID, model.NewJobResult(0, 0, 0, fmt.Sprintf("Prerequisite validation failed for date %s: %v", day, err)))
	}
	if !ok {
		slog.ErrorContext(ctx, "LOG003 batch aborted, previous events are pending", "reason", msg)
		return s.result(jobID, model.NewJobResult(0, 0, 0, msg))
	}

	selected, err := s.selector.SelectEventsToSend(ctx, target)
	if err != nil {
		sc.RecordError(err)
		slog.ErrorContext(ctx, "dispatch selection failed", "error", err)
		return s.result(jobID, model.NewJobResult(0, 0, 0, fmt.Sprintf("Dispatch selection failed for date %s: %v", day, err)))
	}

	var (
		total   int64
		res     model.BatchResult
		message = "Processing complete for " + day
	)
	if len(selected) > 0 {
		total = int64(len(selected))
		res = s.runSelected(ctx, jobID, selected)
	} else {
		total, err = s.events.CountEligible(ctx, target, s.filter)
		if err != nil {
			sc.RecordError(err)
			slog.ErrorContext(ctx, "counting eligible events failed", "error", err)
			return s.result(jobID, model.NewJobResult(0, 0, 0, fmt.Sprintf("Dispatch selection failed for date %s: %v", day, err)))
		}
		if total == 0 {
			return s.result(jobID, model.NewJobResult(0, 0, 0, s.nothingEligibleMessage(ctx, target)))
		}
		var read int64
		res, read, err = s.runEligiblePages(ctx, jobID, target, total)
		switch {
		case err != nil:
			// Events that were counted but never read are not delivered.
			sc.RecordError(err)
			slog.ErrorContext(ctx, "reading eligible events failed", "error", err, "unread", total-read)
			res.FailureCount += int(max(0, total-read))
			message = fmt.Sprintf("Processing incomplete for %s: %v", day, err)
		case read != total:
			slog.WarnContext(ctx, "eligible events changed while paging", "counted", total, "read", read)
			total = read
		}
	}

	result := s.result(jobID, model.NewJobResult(res.SuccessCount, res.FailureCount, total, message))
	slog.InfoContext(ctx, "processing finished",
		"total", total,
		"success", result.SuccessCount,
		"failure", result.FailureCount)

	s.publishReport(ctx, target, result)
	return result
}

func (s *processingService) runSelected(ctx context.Context, jobID string, events []model.SignalEvent) model.BatchResult {
	chunks := chunk(events, s.batchSize)
	slog.InfoContext(ctx, "starting processing", "events", len(events), "batches", len(chunks))

	fan := startFanOut(ctx, s.batches, s.progress, jobID, len(chunks))
	for _, c := range chunks {
		fan.submit(c)
	}
	return fan.wait()
}

// runEligiblePages is the legacy path: page through events already eligible on
// the date and submit each page as a batch while the next one is read. It
// returns how many events were read, which can fall short of total.
func (s *processingService) runEligiblePages(ctx context.Context, jobID string, date time.Time, total int64) (model.BatchResult, int64, error) {
	totalBatches := int((total + int64(s.batchSize) - 1) / int64(s.batchSize))
	slog.InfoContext(ctx, "selector returned nothing, using eligible events", "events", total, "batches", totalBatches)

	fan := startFanOut(ctx, s.batches, s.progress, jobID, totalBatches)
	var (
		read    int64
		readErr error
	)
	for page := 0; ; page++ {
		events, err := s.events.ListEligiblePage(ctx, date, s.filter, page, s.batchSize)
		if err != nil {
			readErr = fmt.Errorf("reading eligible page %d: %w", page, err)
			break
		}
		if len(events) == 0 {
			break
		}
		read += int64(len(events))
		fan.submit(events)
		if len(events) < s.batchSize {
			break
		}
	}
	return fan.wait(), read, readErr
}

// nothingEligibleMessage tells an empty date apart from one whose events all
// fell outside the eligibility filter.
func (s *processingService) nothingEligibleMessage(ctx context.Context, date time.Time) string {
	day := model.FormatDate(date)
	recorded, err := s.events.CountOnDate(ctx, date)
	if err != nil {
		slog.WarnContext(ctx, "counting recorded events failed", "error", err)
	}
	if recorded == 0 {
		return "No signal events found for date " + day
	}
	slog.InfoContext(ctx, "no recorded event is eligible", "recorded", recorded)
	return fmt.Sprintf("No eligible signal events for date %s (%d recorded)", day, recorded)
}

func (s *processingService) publishReport(ctx context.Context, date time.Time, result model.JobResult) {
	if s.reports == nil {
		return
	}
	report := model.NewDeliveryReport(date, result.TotalCount, int64(result.SuccessCount), int64(result.FailureCount))
	if err := s.reports.Publish(ctx, report); err != nil {
		slog.ErrorContext(ctx, "failed to publish delivery report", "error", err)
	}
}

func (s *processingService) result(jobID string, r model.JobResult) model.JobResult {
	r.JobID = jobID
	return r
}

// fanOut runs one goroutine per batch and sums their results.
type fanOut struct {
	ctx      context.Context
	g        *errgroup.Group
	batches  BatchSubmitter
	tracker  *ProgressTracker
	progress *Progress

	mu     sync.Mutex
	sum    model.BatchResult
	number int
}

func startFanOut(ctx context.Context, batches BatchSubmitter, tracker *ProgressTracker, jobID string, totalBatches int) *fanOut {
	return &fanOut{
		ctx:      ctx,
		g:        &errgroup.Group{},
		batches:  batches,
		tracker:  tracker,
		progress: tracker.Start(ctx, jobID, totalBatches),
	}
}

func (f *fanOut) submit(events []model.SignalEvent) {
	f.number++
	number := f.number
	batch := append([]model.SignalEvent(nil), events...)

	slog.InfoContext(f.ctx, "submitting batch", "batch_number", number, "size", len(batch))

	f.g.Go(func() error {
		ctx := logger.WithLogFields(f.ctx, logger.LogFields{BatchNumber: &number})
		res := f.batches.SubmitBatch(ctx, batch)

		f.mu.Lock()
		f.sum = f.sum.Merge(res)
		f.mu.Unlock()

		f.tracker.OnBatchCompletion(ctx, f.progress, number, len(batch), res)
		return nil
	})
}

func (f *fanOut) wait() model.BatchResult {
	_ = f.g.Wait()
	f.tracker.Finish(f.ctx, f.progress)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sum
}

func chunk(events []model.SignalEvent, size int) [][]model.SignalEvent {
	size = max(1, size)
	out := make([][]model.SignalEvent, 0, (len(events)+size-1)/size)
	for i := 0; i < len(events); i += size {
		out = append(out, events[i:min(len(events), i+size)])
	}
	return out
}
