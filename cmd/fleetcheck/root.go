package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"pagi-framework/fleetcheck/internal/config"
	"pagi-framework/fleetcheck/internal/report"
	"pagi-framework/fleetcheck/internal/telemetry"
)

var (
	cfgFile  string
	logLevel string
	shape    string

	// cfg is populated by PersistentPreRunE and shared with all subcommands.
	cfg *config.Config

	// app holds all wired dependencies; populated by PersistentPreRunE.
	app *AppContext
)

var rootCmd = &cobra.Command{
	Use:   "fleetcheck",
	Short: "Validate and remediate a PAGI fleet deployment",
	Long: `fleetcheck probes a running deployment through an ordered sequence of
phases (infrastructure, entity bootstrap, messaging, synchronization,
planning, capabilities, relay, coordination), writes a JSON report and
exits non-zero when any probe failed.

Bootstrap, messaging, memory and relay steps create new entities on every
run; repeated runs against the same deployment are not idempotent.`,
	SilenceUsage: true,
	RunE:         runValidate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&shape, "shape", "", "report shape: phases or tests (overrides REPORT_SHAPE)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initLogger(logLevel, nil)

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		// --log-level flag takes precedence over the config value.
		if cmd.Flags().Changed("log-level") {
			cfg.Telemetry.LogLevel = logLevel
		}
		if cfg.Run.Verbose {
			cfg.Telemetry.LogLevel = "debug"
		}
		if cmd.Flags().Changed("shape") {
			if _, err := report.ParseShape(shape); err != nil {
				return err
			}
			cfg.Run.ReportShape = shape
		}

		app, err = buildAppContext(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("building app context: %w", err)
		}
		initLogger(cfg.Telemetry.LogLevel, app.logFile)

		return nil
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if app != nil {
			app.Close()
		}
		return nil
	}

	rootCmd.AddCommand(remediateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(unitsCmd)
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if app != nil {
			app.Close()
		}
		os.Exit(1)
	}
}

// initLogger installs the process slog default. Records go to stderr as JSON
// so stdout stays readable; mirror receives a text copy when non-nil.
func initLogger(level string, mirror io.Writer) {
	h := telemetry.NewLogHandler(os.Stderr, telemetry.ParseLevel(level), mirror)
	slog.SetDefault(slog.New(h))
}
