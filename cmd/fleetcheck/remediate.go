package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pagi-framework/fleetcheck/internal/remediation"
	"pagi-framework/fleetcheck/internal/supervisor"
)

var logLines int

var remediateCmd = &cobra.Command{
	Use:   "remediate all|infrastructure|core|plugins|env|logs <unit>|restart <unit>",
	Short: "Start, poll and restart fleet units through the supervisor",
	Long: `remediate drives the process or container supervisor configured under
remediation.supervisor (compose or systemd).

  all             start infrastructure, core services and plugins in order,
                  then restart any critical unit that is still unhealthy
  infrastructure  start and poll the infrastructure units
  core            start the core services, warm up, poll
  plugins         start the plugins, warm up, poll
  env             report which optional environment variables are unset
  logs <unit>     print the last --lines log lines of a unit
  restart <unit>  restart one unit

Restarted units are not re-verified; run fleetcheck afterwards to confirm.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRemediate,
}

func init() {
	remediateCmd.Flags().IntVar(&logLines, "lines", 0, "log lines to show for 'logs' (default remediation.default_log_lines)")
}

func runRemediate(cmd *cobra.Command, args []string) error {
	lines := logLines
	if lines <= 0 {
		lines = cfg.Remediation.DefaultLogLines
	}
	command, err := remediation.ParseCommand(args, lines)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := supervisor.New(cfg.Remediation)
	if err != nil {
		return err
	}

	ctrl := remediation.NewController(rt, app.registry, app.engine, app.console, remediation.Options{
		MaxAttempts: cfg.Remediation.MaxAttempts,
		Interval:    cfg.Remediation.Interval,
		Warmup:      cfg.Remediation.Warmup,
		LogLines:    cfg.Remediation.DefaultLogLines,
	})

	if err := ctrl.Execute(ctx, command); err != nil {
		return fmt.Errorf("remediate %s: %w", command.Kind, err)
	}
	return nil
}
