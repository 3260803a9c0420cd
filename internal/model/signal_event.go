package model

import (
	"cmp"
	"time"
)

const (
	EventStatusOverlimit       = "OVERLIMIT_SIGNAL"
	EventStatusFinancialUpdate = "FINANCIAL_UPDATE"
	EventStatusOutOfOverlimit  = "OUT_OF_OVERLIMIT"
	EventStatusProductSwap     = "PRODUCT_SWAP"
)

// SignalEvent is one immutable occurrence recorded against a signal.
type SignalEvent struct {
	UabsEventID              int64      `json:"uabs_event_id"`
	SignalID                 *int64     `json:"signal_id,omitempty"`
	AgreementID              int64      `json:"agreement_id"`
	EventRecordDateTime      *time.Time `json:"event_record_date_time,omitempty"`
	EventType                string     `json:"event_type"`
	EventStatus              string     `json:"event_status"`
	UnauthorizedDebitBalance *int64     `json:"unauthorized_debit_balance,omitempty"`
	BookDate                 *time.Time `json:"book_date,omitempty"`
	GRV                      *int16     `json:"grv,omitempty"`
	ProductID                *int16     `json:"product_id,omitempty"`
}

// IsClosure reports a same-day clearing event: a recorded balance of exactly zero.
func (e SignalEvent) IsClosure() bool {
	return e.UnauthorizedDebitBalance != nil && *e.UnauthorizedDebitBalance == 0
}

// BalanceAtLeast reports whether the event's balance meets threshold (inclusive).
func (e SignalEvent) BalanceAtLeast(threshold int64) bool {
	return e.UnauthorizedDebitBalance != nil && *e.UnauthorizedDebitBalance >= threshold
}

func (e SignalEvent) Balance() int64 {
	if e.UnauthorizedDebitBalance == nil {
		return 0
	}
	return *e.UnauthorizedDebitBalance
}

// CompareByRecordTime orders events by (EventRecordDateTime, UabsEventID) with nil times last.
func CompareByRecordTime(a, b SignalEvent) int {
	if c := compareTimeNilsLast(a.EventRecordDateTime, b.EventRecordDateTime); c != 0 {
		return c
	}
	return cmp.Compare(a.UabsEventID, b.UabsEventID)
}

// CompareBySignalAndRecordTime orders by signal first (nil signals last), then CompareByRecordTime.
func CompareBySignalAndRecordTime(a, b SignalEvent) int {
	switch {
	case a.SignalID == nil && b.SignalID != nil:
		return 1
	case a.SignalID != nil && b.SignalID == nil:
		return -1
	case a.SignalID != nil && b.SignalID != nil:
		if c := cmp.Compare(*a.SignalID, *b.SignalID); c != 0 {
			return c
		}
	}
	return CompareByRecordTime(a, b)
}

func compareTimeNilsLast(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return a.Compare(*b)
	}
}
