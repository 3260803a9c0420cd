package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"basegraph.co/distributor/internal/model"
	"basegraph.co/distributor/internal/store"
)

const defaultDialPrefix = "dial-signal-data"

var dialHeader = []string{
	"AccountNumber", "IBAN", "CustomerId", "GRV", "ProductId", "CurrencyCode",
	"SignalStartDate", "SignalEndDate", "SignalType", "DebitAmount", "BookDate",
}

// FileUploader stores a finished file under folder/name.
type FileUploader interface {
	Upload(ctx context.Context, folder, name string, content []byte) error
}

type DialExportConfig struct {
	Folder string
	Prefix string
}

// DialExportService writes the day's signal events as a CSV for the DIAL consumer.
type DialExportService interface {
	// Export uploads the file and returns its name.
	Export(ctx context.Context, date time.Time) (string, error)
}

type dialExportService struct {
	events   store.SignalEventStore
	signals  store.SignalStore
	balances store.AccountBalanceStore
	files    FileUploader
	cfg      DialExportConfig
}

func NewDialExportService(
	events store.SignalEventStore,
	signals store.SignalStore,
	balances store.AccountBalanceStore,
	files FileUploader,
	cfg DialExportConfig,
) DialExportService {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultDialPrefix
	}
	return &dialExportService{events: events, signals: signals, balances: balances, files: files, cfg: cfg}
}

func (s *dialExportService) Export(ctx context.Context, date time.Time) (string, error) {
	target := model.Date(date)

	events, err := s.events.ListOnDate(ctx, target)
	if err != nil {
		return "", fmt.Errorf("listing events on %s: %w", model.FormatDate(target), err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(dialHeader); err != nil {
		return "", fmt.Errorf("writing csv header: %w", err)
	}
	for _, event := range events {
		row, err := s.row(ctx, event)
		if err != nil {
			return "", err
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("writing csv row %d: %w", event.UabsEventID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flushing csv: %w", err)
	}

	name := fmt.Sprintf("%s-%s.csv", s.cfg.Prefix, model.FormatDate(target))
	if err := s.files.Upload(ctx, s.cfg.Folder, name, buf.Bytes()); err != nil {
		return "", fmt.Errorf("uploading %s: %w", name, err)
	}

	slog.InfoContext(ctx, "dial export uploaded", "file", name, "rows", len(events))
	return name, nil
}

func (s *dialExportService) row(ctx context.Context, event model.SignalEvent) ([]string, error) {
	signal, err := s.signals.GetOpenByAgreementID(ctx, event.AgreementID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		signal = signalFromEvent(event)
	case err != nil:
		return nil, fmt.Errorf("getting open signal of agreement %d: %w", event.AgreementID, err)
	}

	account, err := s.balances.GetByAgreementID(ctx, event.AgreementID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		account = &model.AccountBalance{}
	case err != nil:
		return nil, fmt.Errorf("getting account balance of agreement %d: %w", event.AgreementID, err)
	}

	return []string{
		strconv.FormatInt(signal.AgreementID, 10),
		account.IBAN,
		formatPtr(account.BCNumber),
		formatPtr(event.GRV),
		formatPtr(event.ProductID),
		account.CurrencyCode,
		formatDatePtr(signal.StartDate),
		formatDatePtr(signal.EndDate),
		model.EventStatusOverlimit,
		formatPtr(event.UnauthorizedDebitBalance),
		formatDatePtr(event.BookDate),
	}, nil
}

func signalFromEvent(event model.SignalEvent) *model.Signal {
	s := &model.Signal{AgreementID: event.AgreementID}
	if event.SignalID != nil {
		s.SignalID = *event.SignalID
	}
	if event.EventRecordDateTime != nil {
		start := model.Date(*event.EventRecordDateTime)
		s.StartDate = &start
	}
	return s
}

func formatPtr[T int16 | int64](v *T) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(int64(*v), 10)
}

func formatDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return model.FormatDate(*t)
}
