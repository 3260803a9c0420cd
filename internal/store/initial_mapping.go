package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"basegraph.co/distributor/core/db"
	"basegraph.co/distributor/internal/model"
)

type initialMappingStore struct {
	q db.Querier
}

func newInitialMappingStore(q db.Querier) InitialMappingStore {
	return &initialMappingStore{q: q}
}

func (s *initialMappingStore) GetBySignalID(ctx context.Context, signalID int64) (*model.InitialMapping, error) {
	var m model.InitialMapping
	err := s.q.QueryRow(ctx, `
		SELECT signal_id, ceh_initial_event_id
		FROM ceh_response_initial_event_id WHERE signal_id = $1`, signalID).Scan(&m.SignalID, &m.HubEventID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("initial mapping for signal %d: %w", signalID, err)
	}
	return &m, nil
}

// SaveIfAbsent relies on the primary key on signal_id, so concurrent first
// deliveries for the same signal leave exactly one row behind.
func (s *initialMappingStore) SaveIfAbsent(ctx context.Context, signalID int64, hubEventID string) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		INSERT INTO ceh_response_initial_event_id (signal_id, ceh_initial_event_id)
		VALUES ($1, $2)
		ON CONFLICT (signal_id) DO NOTHING`, signalID, hubEventID)
	if err != nil {
		return false, fmt.Errorf("saving initial mapping for signal %d: %w", signalID, err)
	}
	return tag.RowsAffected() == 1, nil
}
