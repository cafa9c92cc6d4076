package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pagi-framework/fleetcheck/internal/config"
	"pagi-framework/fleetcheck/internal/orchestrator"
	"pagi-framework/fleetcheck/internal/report"
)

// validator is the part of *orchestrator.Service the default command uses.
type validator interface {
	Run(ctx context.Context) (*orchestrator.RunResult, error)
	Last() *orchestrator.Snapshot
}

// runValidate is the default command: one validation run, a summary table,
// and a non-zero exit when anything failed.
func runValidate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return validate(ctx, app.service, app.console, cfg.Run)
}

// validate returns nil only when the run completed with zero failed records.
// Skipped records alone never fail the command.
func validate(ctx context.Context, svc validator, console *report.Console, run config.RunConfig) error {
	console.Info("Validating deployment at %s", run.BaseURL)

	result, runErr := svc.Run(ctx)

	if snap := svc.Last(); snap != nil {
		report.RenderSummary(console.Writer(), snap.Document)
		console.Info("Report written to %s", run.ReportFile)
	}

	if runErr != nil {
		return fmt.Errorf("validation aborted: %w", runErr)
	}
	if result.Failed() {
		console.Fail("%d of %d probes failed", result.Summary.Failed, result.Summary.Total)
		return fmt.Errorf("%d probe(s) failed", result.Summary.Failed)
	}
	console.Pass("No failures: %d passed, %d skipped", result.Summary.Passed, result.Summary.Skipped)
	return nil
}
