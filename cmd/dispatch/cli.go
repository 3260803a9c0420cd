package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"basegraph.co/distributor/internal/model"
)

const (
	modeProcess    = "process"
	modeRetry      = "retry"
	modeDialExport = "dial-export"
)

type options struct {
	date  time.Time
	jobID string
}

// runFunc executes one job and returns the process exit code.
type runFunc func(ctx context.Context, mode string, opts options) int

// exitError carries a non-zero exit code out of cobra's RunE.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func newRootCmd(ctx context.Context, run runFunc) *cobra.Command {
	var (
		dateFlag string
		jobID    string
	)

	modeCmd := func(mode string) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			date := model.Date(time.Now().UTC())
			if dateFlag != "" {
				parsed, err := model.ParseDate(dateFlag)
				if err != nil {
					return fmt.Errorf("invalid --date %q: %w", dateFlag, err)
				}
				date = parsed
			}
			if code := run(ctx, mode, options{date: date, jobID: jobID}); code != exitOK {
				return &exitError{code: code}
			}
			return nil
		}
	}

	rootCmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Run one signal event dispatch pass and exit",
		Long: `dispatch runs a single processing, retry or DIAL export pass for a date
against the configured database and Hub, then exits.

Without a subcommand it runs a processing pass.`,
		Args:          cobra.NoArgs,
		RunE:          modeCmd(modeProcess),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dateFlag, "date", "", "processing date, YYYY-MM-DD (default: today UTC)")
	rootCmd.PersistentFlags().StringVar(&jobID, "job-id", "", "job id (default: generated)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   modeProcess,
			Short: "Select and deliver the events of a date",
			Args:  cobra.NoArgs,
			RunE:  modeCmd(modeProcess),
		},
		&cobra.Command{
			Use:   modeRetry,
			Short: "Re-send the events whose latest delivery on a date failed",
			Args:  cobra.NoArgs,
			RunE:  modeCmd(modeRetry),
		},
		&cobra.Command{
			Use:   modeDialExport,
			Short: "Export the events of a date as CSV to file storage",
			Args:  cobra.NoArgs,
			RunE:  modeCmd(modeDialExport),
		},
	)

	return rootCmd
}

// execute runs the command line and maps its outcome to an exit code.
// Flag, argument and date errors exit with 2.
func execute(ctx context.Context, args []string, run runFunc) int {
	rootCmd := newRootCmd(ctx, run)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	if err == nil {
		return exitOK
	}

	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}

	fmt.Fprintln(os.Stderr, "Error:", err)
	return exitBadInput
}
