package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"basegraph.co/distributor/common/logger"
	"basegraph.co/distributor/internal/model"
	"basegraph.co/distributor/internal/store"
)

// DispatchSelector decides which events go to the Hub for a processing date.
type DispatchSelector interface {
	// SelectEventsToSend returns the events to deliver, in evaluation order.
	// It has no side effects; storage errors are returned as-is.
	SelectEventsToSend(ctx context.Context, targetDate time.Time) ([]model.SignalEvent, error)
}

type SelectorConfig struct {
	BalanceThreshold  int64
	DaysOpenThreshold int64
	ConsumerID        int64
}

type dispatchSelector struct {
	events   store.SignalEventStore
	signals  store.SignalStore
	audits   store.AuditStore
	mappings store.InitialMappingStore
	cfg      SelectorConfig
}

func NewDispatchSelector(
	events store.SignalEventStore,
	signals store.SignalStore,
	audits store.AuditStore,
	mappings store.InitialMappingStore,
	cfg SelectorConfig,
) DispatchSelector {
	return &dispatchSelector{
		events:   events,
		signals:  signals,
		audits:   audits,
		mappings: mappings,
		cfg:      cfg,
	}
}

func (s *dispatchSelector) SelectEventsToSend(ctx context.Context, targetDate time.Time) ([]model.SignalEvent, error) {
	target := model.Date(targetDate)
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ProcessingDate: logger.Ptr(model.FormatDate(target)),
		Component:      "distributor.service.selector",
	})

	todays, err := s.events.ListOnDate(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("listing events on %s: %w", model.FormatDate(target), err)
	}

	order, bySignal := groupBySignal(todays)

	var selected []model.SignalEvent
	evaluated := make(map[int64]struct{}, len(order))

	for _, signalID := range order {
		evaluated[signalID] = struct{}{}
		event, err := s.evaluateSignal(ctx, signalID, bySignal[signalID], target)
		if err != nil {
			return nil, fmt.Errorf("evaluating signal %d: %w", signalID, err)
		}
		if event != nil {
			selected = append(selected, *event)
		}
	}

	overdue, err := s.overdueSweep(ctx, target, evaluated)
	if err != nil {
		return nil, err
	}
	selected = append(selected, overdue...)

	slog.InfoContext(ctx, "dispatch selection complete",
		"events_today", len(todays),
		"signals_today", len(order),
		"selected", len(selected),
		"overdue_selected", len(overdue))

	return selected, nil
}

// evaluateSignal applies the decision rules to one signal with events today.
// It returns nil when nothing should be sent.
func (s *dispatchSelector) evaluateSignal(ctx context.Context, signalID int64, todays []model.SignalEvent, target time.Time) (*model.SignalEvent, error) {
	signal, err := s.signals.GetByID(ctx, signalID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting signal: %w", err)
	}
	if !startedBy(signal, target) {
		return nil, nil
	}

	earliest, err := s.earliestOverlimit(ctx, signalID)
	if err != nil || earliest == nil {
		return nil, err
	}

	dpd := signal.DPD(target)
	todaysEvent := latestEvent(todays)
	closed := signal.ClosedOn(target) || (todaysEvent != nil && todaysEvent.IsClosure())

	initialSent, err := s.initialAlreadySent(ctx, signalID, earliest)
	if err != nil {
		return nil, err
	}

	breached := todaysEvent != nil && todaysEvent.BalanceAtLeast(s.cfg.BalanceThreshold)
	openTooLong := dpd > s.cfg.DaysOpenThreshold

	if !initialSent && closed {
		if todaysEvent != nil && todaysEvent.IsClosure() {
			return nil, nil
		}
		if !breached {
			return nil, nil
		}
	}

	if initialSent {
		// Once the initial notification went out, every later event is relayed.
		return todaysEvent, nil
	}

	if closed && dpd <= s.cfg.DaysOpenThreshold && !breached && !openTooLong {
		return nil, nil
	}

	if breached || openTooLong {
		slog.DebugContext(ctx, "dispatching earliest overlimit event",
			"signal_id", signalID,
			"uabs_event_id", earliest.UabsEventID,
			"dpd", dpd,
			"breached", breached,
			"open_too_long", openTooLong)
		return earliest, nil
	}
	return nil, nil
}

// overdueSweep escalates signals with no event today that have been open too long.
func (s *dispatchSelector) overdueSweep(ctx context.Context, target time.Time, evaluated map[int64]struct{}) ([]model.SignalEvent, error) {
	cutoff := target.AddDate(0, 0, -int(s.cfg.DaysOpenThreshold))

	candidates, err := s.signals.ListStartedOnOrBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing overdue signals: %w", err)
	}

	var out []model.SignalEvent
	for _, signal := range candidates {
		if _, seen := evaluated[signal.SignalID]; seen {
			continue
		}
		if !startedBy(&signal, target) {
			continue
		}
		if signal.DPD(target) <= s.cfg.DaysOpenThreshold {
			continue
		}

		earliest, err := s.earliestOverlimit(ctx, signal.SignalID)
		if err != nil {
			return nil, fmt.Errorf("overdue signal %d: %w", signal.SignalID, err)
		}
		if earliest == nil {
			continue
		}

		sent, err := s.initialAlreadySent(ctx, signal.SignalID, earliest)
		if err != nil {
			return nil, fmt.Errorf("overdue signal %d: %w", signal.SignalID, err)
		}
		if sent || signal.ClosedOn(target) {
			continue
		}
		out = append(out, *earliest)
	}
	return out, nil
}

func (s *dispatchSelector) earliestOverlimit(ctx context.Context, signalID int64) (*model.SignalEvent, error) {
	event, err := s.events.EarliestOverlimit(ctx, signalID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting earliest overlimit event: %w", err)
	}
	return event, nil
}

// initialAlreadySent trusts the mapping first and falls back to the audit log
// of the earliest overlimit event, which covers a lost mapping write.
func (s *dispatchSelector) initialAlreadySent(ctx context.Context, signalID int64, earliest *model.SignalEvent) (bool, error) {
	_, err := s.mappings.GetBySignalID(ctx, signalID)
	switch {
	case err == nil:
		return true, nil
	case !errors.Is(err, store.ErrNotFound):
		return false, fmt.Errorf("getting initial mapping: %w", err)
	}

	ok, err := s.audits.IsEventSuccessful(ctx, earliest.UabsEventID, s.cfg.ConsumerID)
	if err != nil {
		return false, fmt.Errorf("checking audit of earliest overlimit event: %w", err)
	}
	return ok, nil
}

func startedBy(signal *model.Signal, target time.Time) bool {
	return signal != nil && signal.StartDate != nil && !model.Date(*signal.StartDate).After(target)
}

// groupBySignal buckets events by signal id, keeping first-appearance order.
// Events without a signal are dropped.
func groupBySignal(events []model.SignalEvent) ([]int64, map[int64][]model.SignalEvent) {
	var order []int64
	groups := make(map[int64][]model.SignalEvent)
	for _, e := range events {
		if e.SignalID == nil {
			continue
		}
		id := *e.SignalID
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], e)
	}
	return order, groups
}

// latestEvent is the max under CompareByRecordTime, so an event without a
// record time outranks timed ones.
func latestEvent(events []model.SignalEvent) *model.SignalEvent {
	if len(events) == 0 {
		return nil
	}
	latest := slices.MaxFunc(events, model.CompareByRecordTime)
	return &latest
}
