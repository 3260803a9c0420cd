package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"basegraph.co/distributor/internal/model"
	"basegraph.co/distributor/internal/store"
)

// PrerequisiteValidator blocks a day's run while any signal still has an
// undelivered predecessor.
type PrerequisiteValidator interface {
	// Validate returns ok=false with a human readable message when the run must abort.
	Validate(ctx context.Context, date time.Time) (ok bool, message string, err error)
}

type prerequisiteValidator struct {
	events     store.SignalEventStore
	audits     store.AuditStore
	consumerID int64
}

func NewPrerequisiteValidator(events store.SignalEventStore, audits store.AuditStore, consumerID int64) PrerequisiteValidator {
	return &prerequisiteValidator{events: events, audits: audits, consumerID: consumerID}
}

func (v *prerequisiteValidator) Validate(ctx context.Context, date time.Time) (bool, string, error) {
	target := model.Date(date)

	events, err := v.events.ListOnDate(ctx, target)
	if err != nil {
		return false, "", fmt.Errorf("listing events on %s: %w", model.FormatDate(target), err)
	}
	if len(events) == 0 {
		return true, "", nil
	}

	slices.SortStableFunc(events, model.CompareBySignalAndRecordTime)

	var blocked []int64
	for _, event := range events {
		if event.SignalID == nil || event.EventRecordDateTime == nil {
			continue
		}

		prev, err := v.events.Previous(ctx, *event.SignalID, *event.EventRecordDateTime)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, "", fmt.Errorf("getting previous event of %d: %w", event.UabsEventID, err)
		}

		status, found, err := v.audits.LatestStatus(ctx, prev.UabsEventID, v.consumerID)
		if err != nil {
			return false, "", fmt.Errorf("getting audit status of %d: %w", prev.UabsEventID, err)
		}
		// Never attempted is not a failure.
		if found && !model.IsSuccessStatus(status) {
			blocked = append(blocked, event.UabsEventID)
		}
	}

	if len(blocked) == 0 {
		return true, "", nil
	}

	ids := make([]string, len(blocked))
	for i, id := range blocked {
		ids[i] = strconv.FormatInt(id, 10)
	}
	msg := fmt.Sprintf("Prerequisite check failed for date %s. Prior event not successful for uabsEventIds=[%s]",
		model.FormatDate(target), strings.Join(ids, ","))
	slog.WarnContext(ctx, "prerequisite check failed", "blocked", len(blocked), "uabs_event_ids", ids)
	return false, msg, nil
}
