package model

import "time"

// AccountBalance is the latest balance snapshot of an agreement. BCNumber is
// the customer id the Hub expects.
type AccountBalance struct {
	AgreementID  int64      `json:"agreement_id"`
	BCNumber     *int64     `json:"bc_number,omitempty"`
	IBAN         string     `json:"iban"`
	CurrencyCode string     `json:"currency_code"`
	GRV          *int16     `json:"grv,omitempty"`
	ProductID    *int16     `json:"product_id,omitempty"`
	BookDate     *time.Time `json:"book_date,omitempty"`
}
