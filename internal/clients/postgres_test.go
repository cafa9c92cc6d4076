package clients

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"

	"pagi-framework/fleetcheck/internal/config"
	"pagi-framework/fleetcheck/internal/probe"
)

// mockRow implements pgx.Row for use in tests.
type mockRow struct {
	scanErr error
	val     any
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int); ok {
			if v, ok := r.val.(int); ok {
				*ptr = v
			}
		}
	}
	return nil
}

// mockDB implements dbPinger for use in tests.
type mockDB struct {
	pingErr  error
	queryRow pgx.Row
	closed   bool
}

func (m *mockDB) Ping(_ context.Context) error { return m.pingErr }
func (m *mockDB) Close()                       { m.closed = true }
func (m *mockDB) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return m.queryRow
}

// makeClient returns a PostgresClient with a stubbed connect function.
func makeClient(db dbPinger, connectErr error, cb *gobreaker.CircuitBreaker) *PostgresClient {
	return &PostgresClient{
		cfg: config.PostgresConfig{DSN: "postgres://fleet@localhost:5432/fleet"},
		cb:  cb,
		connect: func(_ context.Context, _ config.PostgresConfig) (dbPinger, error) {
			return db, connectErr
		},
	}
}

func TestPostgresProbe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		pingErr    error
		scanErr    error
		val        int
		connectErr error
		wantStatus probe.Status
		wantMsgSub string
	}{
		{
			name:       "success ping ok and select returns 1",
			val:        1,
			wantStatus: probe.StatusPass,
			wantMsgSub: "SELECT 1 ok",
		},
		{
			name:       "failure ping error",
			pingErr:    errors.New("connection refused"),
			val:        1,
			wantStatus: probe.StatusFail,
			wantMsgSub: "ping",
		},
		{
			name:       "failure scan error",
			scanErr:    errors.New("conn busy"),
			wantStatus: probe.StatusFail,
			wantMsgSub: "select 1",
		},
		{
			name:       "failure unexpected value",
			val:        2,
			wantStatus: probe.StatusFail,
			wantMsgSub: "returned 2",
		},
		{
			name:       "failure connect error",
			connectErr: errors.New("dial error"),
			wantStatus: probe.StatusFail,
			wantMsgSub: "dial error",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cb := NewCircuitBreaker("pg-test-" + tc.name)

			var client *PostgresClient
			var db *mockDB
			if tc.connectErr != nil {
				client = makeClient(nil, tc.connectErr, cb)
			} else {
				db = &mockDB{
					pingErr:  tc.pingErr,
					queryRow: &mockRow{scanErr: tc.scanErr, val: tc.val},
				}
				client = makeClient(db, nil, cb)
			}

			result := client.Probe(context.Background())

			assert.Equal(t, postgresProbeName, result.Name)
			assert.Equal(t, tc.wantStatus, result.Status)
			assert.Contains(t, result.Message, tc.wantMsgSub)
			if db != nil {
				assert.True(t, db.closed, "pool must be closed after probe")
			}
		})
	}
}

func TestPostgresProbe_SkippedWithoutDSN(t *testing.T) {
	t.Parallel()

	client := NewPostgresClient(config.PostgresConfig{}, NewCircuitBreaker("pg-skip"))
	result := client.Probe(context.Background())

	assert.Equal(t, probe.StatusSkip, result.Status)
	assert.Equal(t, "DATABASE_URL not set", result.Message)
}

func TestPostgresProbeCircuitBreaker_OpensAfterThreeFailures(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("pg-cb-open-test")
	client := makeClient(&mockDB{
		pingErr:  errors.New("connection refused"),
		queryRow: &mockRow{val: 1},
	}, nil, cb)

	// Three consecutive failures should trip the breaker.
	for i := 0; i < 3; i++ {
		result := client.Probe(context.Background())
		assert.False(t, result.OK(), "probe %d should fail", i+1)
		assert.NotEqual(t, "circuit open", result.Message,
			"probe %d should not be circuit-open yet", i+1)
	}

	// The 4th call must be rejected immediately by the open breaker.
	result := client.Probe(context.Background())
	assert.False(t, result.OK())
	assert.Equal(t, "circuit open", result.Message)
}

func TestNewCircuitBreaker(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("unit-test")
	assert.NotNil(t, cb)
	assert.Equal(t, "unit-test", cb.Name())
}
