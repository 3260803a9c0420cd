package model

import "time"

// Signal is the monitoring window opened for one credit agreement.
// EndDate stays nil while the window is open.
type Signal struct {
	SignalID    int64      `json:"signal_id"`
	AgreementID int64      `json:"agreement_id"`
	StartDate   *time.Time `json:"signal_start_date,omitempty"`
	EndDate     *time.Time `json:"signal_end_date,omitempty"`
}

// ClosedOn reports whether the signal's end date is set and not after date.
func (s Signal) ClosedOn(date time.Time) bool {
	return s.EndDate != nil && !Date(*s.EndDate).After(Date(date))
}

// DPD is the 1-based days-past-due count on date; the start date itself is DPD 1.
// Returns 0 when the signal has no start date or starts after date.
func (s Signal) DPD(date time.Time) int64 {
	if s.StartDate == nil {
		return 0
	}
	days := DaysBetween(*s.StartDate, date) + 1
	if days < 0 {
		return 0
	}
	return days
}
