package model

import (
	"strings"
	"time"
)

const (
	AuditStatusPass = "PASS"
	AuditStatusFail = "FAIL"

	auditResponseCodeMax    = 10
	auditResponseMessageMax = 100
)

// AuditRecord is one append-only delivery outcome.
type AuditRecord struct {
	AuditID                  int64     `json:"audit_id"`
	SignalID                 *int64    `json:"signal_id,omitempty"`
	UabsEventID              int64     `json:"uabs_event_id"`
	ConsumerID               int64     `json:"consumer_id"`
	AgreementID              int64     `json:"agreement_id"`
	UnauthorizedDebitBalance int64     `json:"unauthorized_debit_balance"`
	Status                   string    `json:"status"`
	ResponseCode             string    `json:"response_code"`
	ResponseMessage          string    `json:"response_message"`
	RecordedAt               time.Time `json:"audit_record_date_time"`
}

// NewAuditRecord builds a record for event, clamping the response fields to their column widths.
func NewAuditRecord(event SignalEvent, consumerID int64, status, responseCode, message string, at time.Time) AuditRecord {
	return AuditRecord{
		SignalID:                 event.SignalID,
		UabsEventID:              event.UabsEventID,
		ConsumerID:               consumerID,
		AgreementID:              event.AgreementID,
		UnauthorizedDebitBalance: event.Balance(),
		Status:                   status,
		ResponseCode:             clip(responseCode, auditResponseCodeMax),
		ResponseMessage:          clip(message, auditResponseMessageMax),
		RecordedAt:               at,
	}
}

// IsSuccessStatus reports whether an audit status counts as delivered.
func IsSuccessStatus(status string) bool {
	s := strings.TrimSpace(status)
	return strings.EqualFold(s, "PASS") || strings.EqualFold(s, "SUCCESS")
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
