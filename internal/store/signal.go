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

type signalStore struct {
	q db.Querier
}

func newSignalStore(q db.Querier) SignalStore {
	return &signalStore{q: q}
}

func (s *signalStore) GetByID(ctx context.Context, signalID int64) (*model.Signal, error) {
	row := s.q.QueryRow(ctx, `
		SELECT signal_id, agreement_id, signal_start_date, signal_end_date
		FROM signal WHERE signal_id = $1`, signalID)
	return scanOneSignal(row)
}

func (s *signalStore) GetOpenByAgreementID(ctx context.Context, agreementID int64) (*model.Signal, error) {
	row := s.q.QueryRow(ctx, `
		SELECT signal_id, agreement_id, signal_start_date, signal_end_date
		FROM signal
		WHERE agreement_id = $1 AND signal_end_date IS NULL
		ORDER BY signal_start_date DESC NULLS LAST, signal_id DESC
		LIMIT 1`, agreementID)
	return scanOneSignal(row)
}

func (s *signalStore) ListStartedOnOrBefore(ctx context.Context, date time.Time) ([]model.Signal, error) {
	rows, err := s.q.Query(ctx, `
		SELECT signal_id, agreement_id, signal_start_date, signal_end_date
		FROM signal
		WHERE signal_start_date <= $1
		ORDER BY signal_id`, toPgDate(date))
	if err != nil {
		return nil, fmt.Errorf("listing signals started by %s: %w", model.FormatDate(date), err)
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning signal: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

func scanSignal(row pgx.Row) (model.Signal, error) {
	var (
		sig        model.Signal
		start, end pgtype.Date
	)
	if err := row.Scan(&sig.SignalID, &sig.AgreementID, &start, &end); err != nil {
		return model.Signal{}, err
	}
	sig.StartDate = fromPgDate(start)
	sig.EndDate = fromPgDate(end)
	return sig, nil
}

func scanOneSignal(row pgx.Row) (*model.Signal, error) {
	sig, err := scanSignal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sig, nil
}
