package model

import (
	"fmt"
	"time"
)

// DeliveryReport is the plain-text summary published after a run.
type DeliveryReport struct {
	Date          time.Time `json:"date"`
	TotalEvents   int64     `json:"total_events"`
	SuccessEvents int64     `json:"success_events"`
	FailedEvents  int64     `json:"failed_events"`
	Content       string    `json:"content"`
}

func NewDeliveryReport(date time.Time, total, success, failed int64) DeliveryReport {
	d := FormatDate(date)
	content := fmt.Sprintf("UABS DELIVERY TO CEH REPORT\n"+
		"Total number of events for Date %s = %d\n"+
		"Total number of events sent to CEH with PASS status- %d\n"+
		"Total number of events not sent to CEH (with FAIL status)- %d\n",
		d, total, success, failed)
	return DeliveryReport{
		Date:          Date(date),
		TotalEvents:   total,
		SuccessEvents: success,
		FailedEvents:  failed,
		Content:       content,
	}
}
