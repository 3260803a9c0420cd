package delivery

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"basegraph.co/distributor/common/logger"
	"basegraph.co/distributor/internal/model"
)

// Sender delivers one event. *Client implements it.
type Sender interface {
	Send(ctx context.Context, event model.SignalEvent) Outcome
}

// BatchSender fans a batch out over a bounded number of concurrent sends.
type BatchSender struct {
	sender      Sender
	concurrency int
}

func NewBatchSender(sender Sender, rateLimit int) *BatchSender {
	return &BatchSender{sender: sender, concurrency: max(1, rateLimit)}
}

// SubmitBatch sends every event of the batch and counts the results.
// success+failure always equals len(events).
func (b *BatchSender) SubmitBatch(ctx context.Context, events []model.SignalEvent) model.BatchResult {
	if len(events) == 0 {
		return model.BatchResult{}
	}

	start := time.Now()
	results := make([]bool, len(events))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for i, event := range events {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					slog.ErrorContext(gctx, "panic while sending event", "panic", r, "uabs_event_id", event.UabsEventID)
				}
			}()
			results[i] = b.sender.Send(gctx, event).Success()
			return nil
		})
	}
	_ = g.Wait()

	res := model.BatchResultFromBools(results)
	slog.InfoContext(logger.WithLogFields(ctx, logger.LogFields{Component: "distributor.delivery.batch"}),
		"batch submitted",
		"size", len(events),
		"success", res.SuccessCount,
		"failure", res.FailureCount,
		"concurrency", b.concurrency,
		"duration_ms", time.Since(start).Milliseconds())
	return res
}
