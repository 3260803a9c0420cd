// Command dispatch runs one processing, retry or DIAL export pass for a date and exits.
//
//	dispatch process --date 2025-01-01
//	dispatch retry --date 2025-01-01
//	dispatch dial-export --date 2025-01-01
//
// Exit codes: 0 success, 1 setup or run failure, 2 bad input, 3 the run reported failures.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"basegraph.co/distributor/common/logger"
	"basegraph.co/distributor/common/otel"
	"basegraph.co/distributor/core/config"
	"basegraph.co/distributor/internal/bootstrap"
	"basegraph.co/distributor/internal/model"
)

const (
	exitOK       = 0
	exitFailure  = 1
	exitBadInput = 2
	exitPartial  = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], runJob)
	stop()
	os.Exit(code)
}

// runJob loads config, wires the app and runs one job.
func runJob(ctx context.Context, mode string, opts options) int {
	cfg, err := config.Load(config.ServiceTypeDispatch)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		return exitFailure
	}

	telemetry, err := otel.Setup(ctx, cfg)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		return exitFailure
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	logger.Setup(cfg)

	app, err := bootstrap.New(ctx, cfg, 3)
	if err != nil {
		slog.ErrorContext(ctx, "failed to initialize", "error", err)
		return exitFailure
	}
	defer app.Close()

	if mode == modeDialExport {
		export := app.Services.DialExport()
		if export == nil {
			slog.ErrorContext(ctx, "dial export needs STORAGE_ENDPOINT or STORAGE_LOCAL_DIR")
			return exitFailure
		}
		name, err := export.Export(ctx, opts.date)
		if err != nil {
			slog.ErrorContext(ctx, "dial export failed", "error", err)
			return exitFailure
		}
		fmt.Println(name)
		return exitOK
	}

	req := model.JobRequest{Date: opts.date, JobID: opts.jobID, Attempt: 1}
	switch mode {
	case modeRetry:
		req.Kind = model.JobKindRetry
		if req.JobID == "" {
			req.JobID = "retry-" + uuid.NewString()
		}
	default:
		req.Kind = model.JobKindProcess
		if req.JobID == "" {
			req.JobID = "manual-" + uuid.NewString()
		}
	}

	result, err := app.Jobs.Run(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "job failed", "error", err)
		return exitFailure
	}

	fmt.Printf("job=%s success=%d failure=%d total=%d message=%q\n",
		result.JobID, result.SuccessCount, result.FailureCount, result.TotalCount, result.Message)
	if result.FailureCount > 0 {
		return exitPartial
	}
	return exitOK
}
