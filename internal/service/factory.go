package service

import (
	"basegraph.co/distributor/core/config"
	"basegraph.co/distributor/internal/jobstatus"
	"basegraph.co/distributor/internal/store"
)

type Services struct {
	stores   *store.Stores
	cfg      config.Config
	batches  BatchSubmitter
	reports  ReportPublisher
	files    FileUploader
	progress *ProgressTracker
}

// NewServices wires the domain services. reports and files may be nil when the
// corresponding sinks are not configured.
func NewServices(stores *store.Stores, cfg config.Config, batches BatchSubmitter, reports ReportPublisher, files FileUploader) *Services {
	return &Services{
		stores:   stores,
		cfg:      cfg,
		batches:  batches,
		reports:  reports,
		files:    files,
		progress: NewProgressTracker(),
	}
}

func (s *Services) Progress() *ProgressTracker {
	return s.progress
}

func (s *Services) Selector() DispatchSelector {
	return NewDispatchSelector(
		s.stores.SignalEvents(),
		s.stores.Signals(),
		s.stores.Audits(),
		s.stores.InitialMappings(),
		SelectorConfig{
			BalanceThreshold:  s.cfg.Processing.BalanceThreshold,
			DaysOpenThreshold: s.cfg.Processing.DaysOpenThreshold,
			ConsumerID:        s.cfg.Audit.ConsumerID,
		},
	)
}

func (s *Services) Validator() PrerequisiteValidator {
	return NewPrerequisiteValidator(s.stores.SignalEvents(), s.stores.Audits(), s.cfg.Audit.ConsumerID)
}

func (s *Services) Processing() ProcessingService {
	return NewProcessingService(
		s.stores.SignalEvents(),
		s.Validator(),
		s.Selector(),
		s.batches,
		s.progress,
		s.reports,
		ProcessingConfig{
			BatchSize: s.cfg.Processing.BatchSize,
			Eligibility: store.EligibilityFilter{
				MinBalance:           s.cfg.Processing.MinUnauthorizedDebitBalance,
				BookDateLookbackDays: s.cfg.Processing.BookDateLookbackDays,
			},
		},
	)
}

func (s *Services) Retry() RetryService {
	return NewRetryService(
		s.stores.Audits(),
		s.stores.SignalEvents(),
		s.batches,
		s.progress,
		s.cfg.Processing.BatchSize,
		s.cfg.Audit.ConsumerID,
	)
}

func (s *Services) Jobs(statuses jobstatus.Store) *JobRunner {
	return NewJobRunner(s.Processing(), s.Retry(), statuses, s.progress)
}

// DialExport returns nil when no file storage is configured.
func (s *Services) DialExport() DialExportService {
	if s.files == nil {
		return nil
	}
	return NewDialExportService(
		s.stores.SignalEvents(),
		s.stores.Signals(),
		s.stores.AccountBalances(),
		s.files,
		DialExportConfig{
			Folder: s.cfg.Storage.DialFolder,
			Prefix: s.cfg.Storage.DialPrefix,
		},
	)
}
