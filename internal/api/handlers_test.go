package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagi-framework/fleetcheck/internal/orchestrator"
	"pagi-framework/fleetcheck/internal/probe"
	"pagi-framework/fleetcheck/internal/report"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeService implements runService.
type fakeService struct {
	inProgress bool
	ready      bool
	last       *orchestrator.Snapshot
	runs       atomic.Int32
	ran        chan struct{}
}

func (f *fakeService) Run(context.Context) (*orchestrator.RunResult, error) {
	f.runs.Add(1)
	if f.ran != nil {
		close(f.ran)
	}
	return &orchestrator.RunResult{State: orchestrator.RunCompleted}, nil
}

func (f *fakeService) Last() *orchestrator.Snapshot { return f.last }
func (f *fakeService) IsReady() bool                 { return f.ready }
func (f *fakeService) IsRunInProgress() bool         { return f.inProgress }

func newTestEngine(method, path string, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Handle(method, path, h)
	return r
}

func serve(engine http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

// --- StartRun ---

func TestStartRun_202WhenIdle(t *testing.T) {
	t.Parallel()

	fake := &fakeService{ran: make(chan struct{})}
	handler := &Handler{runs: fake}
	engine := newTestEngine(http.MethodPost, "/api/v1/runs", handler.StartRun)

	w := serve(engine, http.MethodPost, "/api/v1/runs")
	assert.Equal(t, http.StatusAccepted, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "accepted", body["status"])

	select {
	case <-fake.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("background run never started")
	}
	assert.EqualValues(t, 1, fake.runs.Load())
}

func TestStartRun_409WhenInProgress(t *testing.T) {
	t.Parallel()

	fake := &fakeService{inProgress: true}
	handler := &Handler{runs: fake}
	engine := newTestEngine(http.MethodPost, "/api/v1/runs", handler.StartRun)

	w := serve(engine, http.MethodPost, "/api/v1/runs")
	assert.Equal(t, http.StatusConflict, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "in-progress", body["status"])
	assert.Zero(t, fake.runs.Load())
}

// --- Report ---

func TestReport_404BeforeFirstRun(t *testing.T) {
	t.Parallel()

	handler := &Handler{runs: &fakeService{}}
	engine := newTestEngine(http.MethodGet, "/api/v1/report", handler.Report)

	w := serve(engine, http.MethodGet, "/api/v1/report")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReport_ServesLastDocument(t *testing.T) {
	t.Parallel()

	rec := report.NewRecorder("", report.ShapeTests, "http://fleet", nil)
	rec.Record(probe.Pass("redis ping", "PONG"))
	require.NoError(t, rec.Close())

	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := &fakeService{last: &orchestrator.Snapshot{
		Result:     &orchestrator.RunResult{State: orchestrator.RunCompleted},
		Document:   rec.Document(),
		FinishedAt: finished,
	}}
	handler := &Handler{runs: fake}
	engine := newTestEngine(http.MethodGet, "/api/v1/report", handler.Report)

	w := serve(engine, http.MethodGet, "/api/v1/report")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", w.Header().Get("X-Run-State"))
	assert.Equal(t, finished.Format(http.TimeFormat), w.Header().Get("Last-Modified"))

	var body struct {
		BaseURL string           `json:"base_url"`
		Tests   []map[string]any `json:"tests"`
		Summary report.Summary   `json:"summary"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "http://fleet", body.BaseURL)
	require.Len(t, body.Tests, 1)
	assert.Equal(t, "redis ping", body.Tests[0]["name"])
	assert.Equal(t, report.Summary{Total: 1, Passed: 1}, body.Summary)
}

// --- Health / Ready ---

func TestHealth_AlwaysReturns200(t *testing.T) {
	t.Parallel()

	handler := &Handler{runs: &fakeService{inProgress: true}}
	engine := newTestEngine(http.MethodGet, "/health", handler.Health)

	w := serve(engine, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["run_in_progress"])
}

func TestReady(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		ready bool
		want  int
	}{
		{name: "not ready", ready: false, want: http.StatusServiceUnavailable},
		{name: "ready", ready: true, want: http.StatusOK},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			handler := &Handler{runs: &fakeService{ready: tc.ready}}
			engine := newTestEngine(http.MethodGet, "/ready", handler.Ready)

			w := serve(engine, http.MethodGet, "/ready")
			assert.Equal(t, tc.want, w.Code)

			var body map[string]any
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tc.ready, body["ready"])
		})
	}
}

// --- middleware ---

func TestRecoveryMiddleware_Returns500OnPanic(t *testing.T) {
	t.Parallel()

	engine := gin.New()
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	engine = gin.New()
	engine.Use(Recovery(logger, &fakeService{inProgress: true}))
	engine.GET("/panic", func(c *gin.Context) {
		panic("intentional test panic")
	})

	w := serve(engine, http.MethodGet, "/panic")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, map[string]string{"status": "internal-error"}, body)
	assert.Contains(t, logs.String(), `"run_in_progress":true`)
}

func TestRequestLogger_RunState(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelInfo}))
	fake := &fakeService{
		inProgress: true,
		last: &orchestrator.Snapshot{
			Result: &orchestrator.RunResult{State: orchestrator.RunAbortedEarly},
		},
	}
	handler := &Handler{runs: fake}

	engine := gin.New()
	engine.Use(RequestLogger(logger, fake))
	engine.GET("/health", handler.Health)
	engine.GET("/api/v1/report", handler.Report)

	serve(engine, http.MethodGet, "/health")
	assert.Empty(t, logs.String(), "status polls log at debug")

	serve(engine, http.MethodGet, "/api/v1/report")
	out := logs.String()
	assert.Contains(t, out, `"route":"/api/v1/report"`)
	assert.Contains(t, out, `"status":200`)
	assert.Contains(t, out, `"run_in_progress":true`)
	assert.Contains(t, out, `"last_run_state":"aborted-early"`)
}

func TestNewRouter_RoutesRegistered(t *testing.T) {
	t.Parallel()

	router := NewRouter(&fakeService{ready: true}, "fleetcheck-test")

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusOK},
		{http.MethodGet, "/api/v1/report", http.StatusNotFound},
		{http.MethodPost, "/api/v1/runs", http.StatusAccepted},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(""))
		router.Handler().ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code, "route %s %s", tc.method, tc.path)
	}
}
