package store

import (
	"context"
	"errors"
	"time"

	"basegraph.co/distributor/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// SignalEventStore defines read access to recorded signal events.
type SignalEventStore interface {
	ListOnDate(ctx context.Context, date time.Time) ([]model.SignalEvent, error)
	CountOnDate(ctx context.Context, date time.Time) (int64, error)
	// EarliestOverlimit returns ErrNotFound when the signal never produced an OVERLIMIT event.
	EarliestOverlimit(ctx context.Context, signalID int64) (*model.SignalEvent, error)
	// Previous returns the latest event of the signal strictly before the given time, or ErrNotFound.
	Previous(ctx context.Context, signalID int64, before time.Time) (*model.SignalEvent, error)
	ListEligiblePage(ctx context.Context, date time.Time, filter EligibilityFilter, page, size int) ([]model.SignalEvent, error)
	CountEligible(ctx context.Context, date time.Time, filter EligibilityFilter) (int64, error)
	ListByIDs(ctx context.Context, ids []int64) ([]model.SignalEvent, error)
}

// EligibilityFilter selects the events the legacy paged read treats as deliverable on a date:
// balance strictly above MinBalance, or booked exactly BookDateLookbackDays before the date.
type EligibilityFilter struct {
	MinBalance           int64
	BookDateLookbackDays int
}

// SignalStore defines read access to signals.
type SignalStore interface {
	GetByID(ctx context.Context, signalID int64) (*model.Signal, error)
	GetOpenByAgreementID(ctx context.Context, agreementID int64) (*model.Signal, error)
	// ListStartedOnOrBefore returns signals whose start date is on or before date, ordered by signal id.
	ListStartedOnOrBefore(ctx context.Context, date time.Time) ([]model.Signal, error)
}

// AuditStore defines the append-only delivery outcome log.
type AuditStore interface {
	Append(ctx context.Context, rec *model.AuditRecord) error
	// LatestStatus returns the status of the newest record for the pair; found is false when none exists.
	LatestStatus(ctx context.Context, uabsEventID, consumerID int64) (status string, found bool, err error)
	IsEventSuccessful(ctx context.Context, uabsEventID, consumerID int64) (bool, error)
	// FailedEventIDsForDate returns ids whose latest record written on date is not a success.
	FailedEventIDsForDate(ctx context.Context, date time.Time, consumerID int64) ([]int64, error)
}

// InitialMappingStore defines access to the one-per-signal initial Hub id.
type InitialMappingStore interface {
	GetBySignalID(ctx context.Context, signalID int64) (*model.InitialMapping, error)
	// SaveIfAbsent inserts the mapping unless one already exists; created reports which happened.
	SaveIfAbsent(ctx context.Context, signalID int64, hubEventID string) (created bool, err error)
}

// AccountBalanceStore defines read access to agreement balance snapshots.
type AccountBalanceStore interface {
	GetByAgreementID(ctx context.Context, agreementID int64) (*model.AccountBalance, error)
}
