package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"

	"pagi-framework/fleetcheck/internal/config"
	"pagi-framework/fleetcheck/internal/probe"
)

const postgresProbeName = "postgres connectivity"

// dbPinger abstracts the pgxpool.Pool methods used in Probe so that tests
// can inject a fake without standing up a real database.
type dbPinger interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresClient probes the optional relational store behind a circuit
// breaker. An empty DSN skips the probe.
type PostgresClient struct {
	cfg     config.PostgresConfig
	cb      *gobreaker.CircuitBreaker
	connect func(ctx context.Context, cfg config.PostgresConfig) (dbPinger, error)
}

// NewPostgresClient creates a PostgresClient that opens a pgx pool on each
// Probe call. No connection is made at construction time.
func NewPostgresClient(cfg config.PostgresConfig, cb *gobreaker.CircuitBreaker) *PostgresClient {
	return &PostgresClient{
		cfg:     cfg,
		cb:      cb,
		connect: realConnect,
	}
}

// Probe pings the server and runs a trivial query.
func (c *PostgresClient) Probe(ctx context.Context) probe.Result {
	if c.cfg.DSN == "" {
		return probe.Skip(postgresProbeName, "DATABASE_URL not set")
	}

	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		pool, err := c.connect(ctx, c.cfg)
		if err != nil {
			return nil, err
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}

		var one int
		if err := pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
			return nil, fmt.Errorf("select 1: %w", err)
		}
		if one != 1 {
			return nil, fmt.Errorf("select 1 returned %d", one)
		}
		return nil, nil
	})

	return classify(postgresProbeName, start, err, "SELECT 1 ok",
		"Check that DATABASE_URL points at a running postgres")
}

// realConnect opens a pgxpool.Pool from the configured DSN.
func realConnect(ctx context.Context, cfg config.PostgresConfig) (dbPinger, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}

	return pool, nil
}
