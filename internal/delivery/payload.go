package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"basegraph.co/distributor/internal/model"
	"basegraph.co/distributor/internal/store"
)

// Payload is the JSON body the Hub accepts for one signal event.
type Payload struct {
	AgreementID       int64   `json:"agreementId"`
	CustomerID        *int64  `json:"customerId"`
	InitialEventID    *string `json:"initialEventId"`
	Publisher         string  `json:"publisher"`
	PublisherID       string  `json:"publisherId"`
	Status            string  `json:"status"`
	SubmittedDateTime *string `json:"submittedDateTime"`
	Type              string  `json:"type"`
}

type Publisher struct {
	Name string
	ID   string
}

// PayloadBuilder enriches events with the customer number and the initial Hub id.
type PayloadBuilder struct {
	mappings  store.InitialMappingStore
	balances  store.AccountBalanceStore
	publisher Publisher
}

func NewPayloadBuilder(mappings store.InitialMappingStore, balances store.AccountBalanceStore, publisher Publisher) *PayloadBuilder {
	return &PayloadBuilder{mappings: mappings, balances: balances, publisher: publisher}
}

// Build never fails: lookups that error leave the optional field empty.
func (b *PayloadBuilder) Build(ctx context.Context, event model.SignalEvent) Payload {
	p := Payload{
		AgreementID: event.AgreementID,
		Publisher:   b.publisher.Name,
		PublisherID: b.publisher.ID,
		Status:      event.EventStatus,
		Type:        event.EventType,
	}

	if event.EventRecordDateTime != nil {
		ts := event.EventRecordDateTime.UTC().Format(time.RFC3339Nano)
		p.SubmittedDateTime = &ts
	}

	if event.SignalID != nil {
		m, err := b.mappings.GetBySignalID(ctx, *event.SignalID)
		switch {
		case err == nil:
			p.InitialEventID = &m.HubEventID
		case !errors.Is(err, store.ErrNotFound):
			slog.WarnContext(ctx, "initial mapping lookup failed", "error", err)
		}
	}

	bal, err := b.balances.GetByAgreementID(ctx, event.AgreementID)
	switch {
	case err == nil:
		p.CustomerID = bal.BCNumber
	case !errors.Is(err, store.ErrNotFound):
		slog.WarnContext(ctx, "account balance lookup failed", "error", err, "agreement_id", event.AgreementID)
	}

	return p
}
