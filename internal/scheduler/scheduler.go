// Package scheduler triggers processing, retry and DIAL export runs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"basegraph.co/distributor/common/logger"
	"basegraph.co/distributor/core/config"
	"basegraph.co/distributor/internal/model"
)

// JobRunner runs a job to completion and records its result.
type JobRunner interface {
	Run(ctx context.Context, req model.JobRequest) (model.JobResult, error)
}

type Exporter interface {
	Export(ctx context.Context, date time.Time) (string, error)
}

type Scheduler struct {
	cron        *cron.Cron
	jobs        JobRunner
	dial        Exporter
	cfg         config.SchedulerConfig
	loc         *time.Location
	dialTimeout time.Duration
	now         func() time.Time
}

// New registers every enabled trigger. dial may be nil, which disables the export.
func New(cfg config.SchedulerConfig, jobs JobRunner, dial Exporter) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading scheduler timezone %q: %w", cfg.Timezone, err)
	}

	dialTimeout := time.Duration(cfg.DialTimeoutMins) * time.Minute
	if dialTimeout <= 0 {
		dialTimeout = 2 * time.Hour
	}

	log := cronLogger{}
	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(log),
			cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
		),
		jobs:        jobs,
		dial:        dial,
		cfg:         cfg,
		loc:         loc,
		dialTimeout: dialTimeout,
		now:         time.Now,
	}

	triggers := []struct {
		name    string
		spec    string
		enabled bool
		run     func(context.Context)
	}{
		{"daily", cfg.DailyCron, cfg.DailyEnabled, s.RunDaily},
		{"monday-yesterday", cfg.MondayYesterday, cfg.MondayYesterdayOn, s.RunMondayYesterday},
		{"monday-today", cfg.MondayToday, cfg.MondayTodayOn, s.RunMondayToday},
		{"retry", cfg.RetryCron, cfg.RetryEnabled, s.RunRetry},
		{"dial-export", cfg.DialCron, cfg.DialEnabled && dial != nil, s.RunDialExport},
	}

	ctx := logger.WithLogFields(context.Background(), logger.LogFields{Component: "distributor.scheduler"})
	for _, t := range triggers {
		if !t.enabled {
			slog.WarnContext(ctx, "LOG004: schedule disabled via config", "trigger", t.name)
			continue
		}
		run := t.run
		if _, err := s.cron.AddFunc(t.spec, func() { run(context.Background()) }); err != nil {
			return nil, fmt.Errorf("scheduling %s (%q): %w", t.name, t.spec, err)
		}
		slog.InfoContext(ctx, "schedule registered", "trigger", t.name, "cron", t.spec, "timezone", cfg.Timezone)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running ones until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunDaily processes today, except on the configured skip weekdays.
func (s *Scheduler) RunDaily(ctx context.Context) {
	today := s.today()
	if slices.Contains(s.cfg.SkipDailyWeekdays, today.Weekday()) {
		slog.InfoContext(ctx, "daily schedule skipped", "date", model.FormatDate(today), "weekday", today.Weekday())
		return
	}
	s.trigger(ctx, model.JobKindProcess, "sched-2am", today)
}

// RunMondayYesterday processes Sunday's events on Monday morning.
func (s *Scheduler) RunMondayYesterday(ctx context.Context) {
	s.trigger(ctx, model.JobKindProcess, "sched-mon-10", s.today().AddDate(0, 0, -1))
}

func (s *Scheduler) RunMondayToday(ctx context.Context) {
	s.trigger(ctx, model.JobKindProcess, "sched-mon-12", s.today())
}

// RunRetry re-sends today's failures, except on the configured skip weekdays.
func (s *Scheduler) RunRetry(ctx context.Context) {
	today := s.today()
	if slices.Contains(s.cfg.SkipRetryWeekdays, today.Weekday()) {
		slog.InfoContext(ctx, "retry schedule skipped", "date", model.FormatDate(today), "weekday", today.Weekday())
		return
	}
	s.trigger(ctx, model.JobKindRetry, "retry", today)
}

func (s *Scheduler) RunDialExport(ctx context.Context) {
	if s.dial == nil {
		return
	}
	date := s.today().AddDate(0, 0, s.cfg.DialDayOffset)
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ProcessingDate: logger.Ptr(model.FormatDate(date)),
		Component:      "distributor.scheduler",
	})
	ctx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	defer cancel()

	slog.InfoContext(ctx, "dial export starting")
	name, err := s.dial.Export(ctx, date)
	if err != nil {
		slog.ErrorContext(ctx, "dial export failed", "error", err)
		return
	}
	slog.InfoContext(ctx, "dial export finished", "file", name)
}

func (s *Scheduler) trigger(ctx context.Context, kind model.JobKind, prefix string, date time.Time) {
	req := model.JobRequest{
		Kind:    kind,
		JobID:   prefix + "-" + uuid.NewString(),
		Date:    date,
		Attempt: 1,
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		JobID:          logger.Ptr(req.JobID),
		ProcessingDate: logger.Ptr(model.FormatDate(date)),
		Component:      "distributor.scheduler",
	})
	// A started run always finishes; there is no mid-run cancellation.
	ctx = context.WithoutCancel(ctx)

	slog.InfoContext(ctx, "scheduler kicking off job", "kind", kind)
	result, err := s.jobs.Run(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "scheduled job failed", "error", err)
		return
	}
	slog.InfoContext(ctx, "scheduled job finished",
		"success", result.SuccessCount,
		"failure", result.FailureCount,
		"message", result.Message)
}

// today is the calendar date in the scheduler's timezone, as a UTC midnight.
func (s *Scheduler) today() time.Time {
	return model.Date(s.now().In(s.loc))
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
