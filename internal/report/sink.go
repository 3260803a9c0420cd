package report

import (
	"context"
	"errors"

	"basegraph.co/distributor/internal/model"
)

// Sink receives a finished delivery report.
type Sink interface {
	Publish(ctx context.Context, report model.DeliveryReport) error
}

// Multi publishes to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, report model.DeliveryReport) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
