package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"pagi-framework/fleetcheck/internal/clients"
	"pagi-framework/fleetcheck/internal/config"
	"pagi-framework/fleetcheck/internal/orchestrator"
	"pagi-framework/fleetcheck/internal/probe"
	"pagi-framework/fleetcheck/internal/registry"
	"pagi-framework/fleetcheck/internal/report"
	"pagi-framework/fleetcheck/internal/telemetry"
)

// AppContext holds the dependencies shared across subcommands. It is built
// once in PersistentPreRunE.
type AppContext struct {
	cfg          *config.Config
	otelProvider *telemetry.Provider
	logFile      *os.File
	console      *report.Console
	registry     *registry.Registry
	engine       *probe.Engine
	service      *orchestrator.Service

	closeOnce sync.Once
}

// buildAppContext wires the fleet from cfg:
//  1. OTEL provider (best-effort, non-fatal)
//  2. LOG_FILE mirror and the run console
//  3. registry and probe engine
//  4. infrastructure clients, one circuit breaker each
//  5. phase catalogue, orchestrator and run service
func buildAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	app := &AppContext{cfg: cfg}

	tp, err := telemetry.InitProvider(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("OTEL provider init failed, telemetry disabled", "err", err)
	} else {
		app.otelProvider = tp
		if !tp.Enabled() {
			slog.Debug("OTEL telemetry disabled (no endpoint configured)")
		}
	}

	var mirror io.Writer
	if cfg.Run.LogFile != "" {
		f, err := os.OpenFile(cfg.Run.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file %s: %w", cfg.Run.LogFile, err)
		}
		app.logFile = f
		mirror = f
	}
	app.console = report.NewConsole(os.Stdout, mirror)

	reg, err := registry.FromConfig(cfg)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("building registry: %w", err)
	}
	app.registry = reg
	app.engine = probe.NewEngine(cfg.Run.Timeout())

	redis := clients.NewRedisClient(cfg.Infra.Redis, clients.NewCircuitBreaker("redis"))
	nats := clients.NewNATSClient(cfg.Infra.NATS, clients.NewCircuitBreaker("nats"))
	pg := clients.NewPostgresClient(cfg.Infra.Postgres, clients.NewCircuitBreaker("postgres"))
	brokerAddr := reg.MustLookup("kafka").Addr()

	phases := orchestrator.DefaultPhases(app.registry, orchestrator.InfraChecks{
		Redis: redis.Probe,
		Broker: func(ctx context.Context) probe.Result {
			return app.engine.Reach(ctx, "kafka broker reachable", brokerAddr)
		},
		NATS:     nats.Probe,
		Postgres: pg.Probe,
	}, orchestrator.Features{
		SwarmRepoURL: cfg.Features.SwarmRepoURL,
		RelayURL:     cfg.Features.RelayURL,
		Capability:   cfg.Run.Capability,
	})

	shape, err := report.ParseShape(cfg.Run.ReportShape)
	if err != nil {
		app.Close()
		return nil, err
	}

	o := orchestrator.New(app.engine, app.registry, phases)
	app.service = orchestrator.NewService(o, func() *report.Recorder {
		return report.NewRecorder(cfg.Run.ReportFile, shape, cfg.Run.BaseURL, app.console)
	})

	return app, nil
}

// Close flushes telemetry and closes the log file. Safe to call twice.
func (a *AppContext) Close() {
	a.closeOnce.Do(func() {
		if a.otelProvider != nil {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.otelProvider.Shutdown(shutCtx); err != nil {
				slog.Warn("OTEL shutdown error", "err", err)
			}
		}
		if a.logFile != nil {
			a.logFile.Close() //nolint:errcheck
		}
	})
}
