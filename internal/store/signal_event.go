package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"basegraph.co/distributor/core/db"
	"basegraph.co/distributor/internal/model"
)

const signalEventColumns = `uabs_event_id, signal_id, agreement_id, event_record_date_time, event_type,
	event_status, unauthorized_debit_balance, book_date, grv, product_id`

type signalEventStore struct {
	q db.Querier
}

func newSignalEventStore(q db.Querier) SignalEventStore {
	return &signalEventStore{q: q}
}

func (s *signalEventStore) ListOnDate(ctx context.Context, date time.Time) ([]model.SignalEvent, error) {
	start, end := dayRange(date)
	rows, err := s.q.Query(ctx, `
		SELECT `+signalEventColumns+`
		FROM signal_events
		WHERE event_record_date_time >= $1 AND event_record_date_time < $2
		ORDER BY event_record_date_time, uabs_event_id`, start, end)
	if err != nil {
		return nil, fmt.Errorf("listing events on %s: %w", model.FormatDate(date), err)
	}
	return collectSignalEvents(rows)
}

func (s *signalEventStore) CountOnDate(ctx context.Context, date time.Time) (int64, error) {
	start, end := dayRange(date)
	var n int64
	err := s.q.QueryRow(ctx, `
		SELECT count(*) FROM signal_events
		WHERE event_record_date_time >= $1 AND event_record_date_time < $2`, start, end).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting events on %s: %w", model.FormatDate(date), err)
	}
	return n, nil
}

func (s *signalEventStore) EarliestOverlimit(ctx context.Context, signalID int64) (*model.SignalEvent, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+signalEventColumns+`
		FROM signal_events
		WHERE signal_id = $1 AND event_status = $2
		ORDER BY event_record_date_time ASC NULLS LAST, uabs_event_id ASC
		LIMIT 1`, signalID, model.EventStatusOverlimit)
	return scanOneSignalEvent(row)
}

func (s *signalEventStore) Previous(ctx context.Context, signalID int64, before time.Time) (*model.SignalEvent, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+signalEventColumns+`
		FROM signal_events
		WHERE signal_id = $1 AND event_record_date_time < $2
		ORDER BY event_record_date_time DESC, uabs_event_id DESC
		LIMIT 1`, signalID, before)
	return scanOneSignalEvent(row)
}

func (s *signalEventStore) ListEligiblePage(ctx context.Context, date time.Time, f EligibilityFilter, page, size int) ([]model.SignalEvent, error) {
	if size <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", size)
	}
	start, end := dayRange(date)
	rows, err := s.q.Query(ctx, `
		SELECT `+signalEventColumns+`
		FROM signal_events
		WHERE event_record_date_time >= $1 AND event_record_date_time < $2
		  AND (unauthorized_debit_balance > $3 OR book_date = $4)
		ORDER BY uabs_event_id
		LIMIT $5 OFFSET $6`,
		start, end, f.MinBalance, toPgDate(start.AddDate(0, 0, -f.BookDateLookbackDays)), size, page*size)
	if err != nil {
		return nil, fmt.Errorf("listing eligible events on %s: %w", model.FormatDate(date), err)
	}
	return collectSignalEvents(rows)
}

func (s *signalEventStore) CountEligible(ctx context.Context, date time.Time, f EligibilityFilter) (int64, error) {
	start, end := dayRange(date)
	var n int64
	err := s.q.QueryRow(ctx, `
		SELECT count(*)
		FROM signal_events
		WHERE event_record_date_time >= $1 AND event_record_date_time < $2
		  AND (unauthorized_debit_balance > $3 OR book_date = $4)`,
		start, end, f.MinBalance, toPgDate(start.AddDate(0, 0, -f.BookDateLookbackDays))).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting eligible events on %s: %w", model.FormatDate(date), err)
	}
	return n, nil
}

func (s *signalEventStore) ListByIDs(ctx context.Context, ids []int64) ([]model.SignalEvent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+signalEventColumns+`
		FROM signal_events
		WHERE uabs_event_id = ANY($1)
		ORDER BY event_record_date_time, uabs_event_id`, ids)
	if err != nil {
		return nil, fmt.Errorf("listing events by id: %w", err)
	}
	return collectSignalEvents(rows)
}

func scanSignalEvent(row pgx.Row) (model.SignalEvent, error) {
	var (
		e        model.SignalEvent
		signalID pgtype.Int8
		recorded pgtype.Timestamptz
		balance  pgtype.Int8
		bookDate pgtype.Date
		grv      pgtype.Int2
		product  pgtype.Int2
	)
	if err := row.Scan(&e.UabsEventID, &signalID, &e.AgreementID, &recorded, &e.EventType,
		&e.EventStatus, &balance, &bookDate, &grv, &product); err != nil {
		return model.SignalEvent{}, err
	}
	e.SignalID = fromPgInt8(signalID)
	e.EventRecordDateTime = fromPgTimestamptz(recorded)
	e.UnauthorizedDebitBalance = fromPgInt8(balance)
	e.BookDate = fromPgDate(bookDate)
	e.GRV = fromPgInt2(grv)
	e.ProductID = fromPgInt2(product)
	return e, nil
}

func scanOneSignalEvent(row pgx.Row) (*model.SignalEvent, error) {
	e, err := scanSignalEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func collectSignalEvents(rows pgx.Rows) ([]model.SignalEvent, error) {
	defer rows.Close()
	var out []model.SignalEvent
	for rows.Next() {
		e, err := scanSignalEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning signal event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
