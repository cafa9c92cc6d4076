package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pagi-framework/fleetcheck/internal/api"
)

var initialRun bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the validation status API",
	Long: `Start the status HTTP server on the configured port (default :8090).

  GET  /health         liveness, always 200
  GET  /ready          200 once the last run finished without failures
  GET  /api/v1/report  last report document (404 before the first run)
  POST /api/v1/runs    start a validation run in the background (409 if one is active)

The server shuts down cleanly on SIGTERM or SIGINT.`,
	RunE: runServer,
}

func init() {
	serveCmd.Flags().BoolVar(&initialRun, "initial-run", false, "start a validation run as soon as the server is up")
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router := api.NewRouter(app.service, cfg.Telemetry.ServiceName)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("fleetcheck server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if initialRun {
		g.Go(func() error {
			if _, err := app.service.Run(gctx); err != nil {
				slog.WarnContext(gctx, "initial run ended with error", "err", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped cleanly")
	return nil
}
