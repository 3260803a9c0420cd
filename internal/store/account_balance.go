package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"basegraph.co/distributor/core/db"
	"basegraph.co/distributor/internal/model"
)

type accountBalanceStore struct {
	q db.Querier
}

func newAccountBalanceStore(q db.Querier) AccountBalanceStore {
	return &accountBalanceStore{q: q}
}

func (s *accountBalanceStore) GetByAgreementID(ctx context.Context, agreementID int64) (*model.AccountBalance, error) {
	var (
		b        model.AccountBalance
		bc       pgtype.Int8
		grv      pgtype.Int2
		product  pgtype.Int2
		bookDate pgtype.Date
	)
	err := s.q.QueryRow(ctx, `
		SELECT agreement_id, bc_number, iban, currency_code, grv, product_id, book_date
		FROM account_balance WHERE agreement_id = $1`, agreementID).
		Scan(&b.AgreementID, &bc, &b.IBAN, &b.CurrencyCode, &grv, &product, &bookDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("account balance for agreement %d: %w", agreementID, err)
	}
	b.BCNumber = fromPgInt8(bc)
	b.GRV = fromPgInt2(grv)
	b.ProductID = fromPgInt2(product)
	b.BookDate = fromPgDate(bookDate)
	return &b, nil
}
