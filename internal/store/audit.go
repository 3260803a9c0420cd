package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"basegraph.co/distributor/common/id"
	"basegraph.co/distributor/core/db"
	"basegraph.co/distributor/internal/model"
)

type auditStore struct {
	q db.Querier
}

func newAuditStore(q db.Querier) AuditStore {
	return &auditStore{q: q}
}

func (s *auditStore) Append(ctx context.Context, rec *model.AuditRecord) error {
	if rec.AuditID == 0 {
		rec.AuditID = id.New()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO signal_audit (audit_id, signal_id, uabs_event_id, consumer_id, agreement_id,
			unauthorized_debit_balance, status, response_code, response_message, audit_record_date_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.AuditID, toPgInt8(rec.SignalID), rec.UabsEventID, rec.ConsumerID, rec.AgreementID,
		rec.UnauthorizedDebitBalance, rec.Status, rec.ResponseCode, rec.ResponseMessage, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("appending audit for event %d: %w", rec.UabsEventID, err)
	}
	return nil
}

// LatestStatus breaks timestamp ties by the higher audit id.
func (s *auditStore) LatestStatus(ctx context.Context, uabsEventID, consumerID int64) (string, bool, error) {
	var status string
	err := s.q.QueryRow(ctx, `
		SELECT status FROM signal_audit
		WHERE uabs_event_id = $1 AND consumer_id = $2
		ORDER BY audit_record_date_time DESC, audit_id DESC
		LIMIT 1`, uabsEventID, consumerID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("latest audit status for event %d: %w", uabsEventID, err)
	}
	return status, true, nil
}

func (s *auditStore) IsEventSuccessful(ctx context.Context, uabsEventID, consumerID int64) (bool, error) {
	status, found, err := s.LatestStatus(ctx, uabsEventID, consumerID)
	if err != nil || !found {
		return false, err
	}
	return model.IsSuccessStatus(status), nil
}

func (s *auditStore) FailedEventIDsForDate(ctx context.Context, date time.Time, consumerID int64) ([]int64, error) {
	start, end := dayRange(date)
	rows, err := s.q.Query(ctx, `
		SELECT uabs_event_id FROM (
			SELECT DISTINCT ON (uabs_event_id) uabs_event_id, status
			FROM signal_audit
			WHERE consumer_id = $1 AND audit_record_date_time >= $2 AND audit_record_date_time < $3
			ORDER BY uabs_event_id, audit_record_date_time DESC, audit_id DESC
		) latest
		WHERE upper(trim(status)) NOT IN ('PASS', 'SUCCESS')
		ORDER BY uabs_event_id`, consumerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("listing failed events on %s: %w", model.FormatDate(date), err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var eventID int64
		if err := rows.Scan(&eventID); err != nil {
			return nil, err
		}
		ids = append(ids, eventID)
	}
	return ids, rows.Err()
}
