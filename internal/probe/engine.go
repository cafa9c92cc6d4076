package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"pagi-framework/fleetcheck/internal/registry"
)

const (
	// DefaultTimeout bounds a single probe when none is configured.
	DefaultTimeout = 10 * time.Second

	// maxBodyBytes caps how much of a response body is kept for extraction.
	maxBodyBytes = 1 << 20

	msgTransportFailure = "request failed or timed out"
)

// Request describes one HTTP probe.
type Request struct {
	Name   string
	Unit   string // logical unit name, used in remediation hints
	Method string
	URL    string
	Expect int
	Body   any // marshalled as JSON when non-nil
}

// Outcome is the classified result plus the raw response, kept so callers
// can extract entity handles from it.
type Outcome struct {
	Result     Result
	StatusCode int
	Body       []byte
}

// Engine issues probes. It never retries; callers that need retries loop
// around Probe themselves.
type Engine struct {
	timeout time.Duration
	httpDo  func(req *http.Request) (*http.Response, error)
	dial    func(ctx context.Context, network, addr string) (net.Conn, error)

	probes  metric.Int64Counter
	latency metric.Float64Histogram
}

// NewEngine constructs an Engine whose probes are bounded by timeout.
func NewEngine(timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	dialer := &net.Dialer{Timeout: timeout}

	e := &Engine{
		timeout: timeout,
		httpDo:  client.Do,
		dial:    dialer.DialContext,
	}
	e.initMetrics()
	return e
}

func (e *Engine) initMetrics() {
	meter := otel.Meter("fleetcheck/probe")

	probes, err := meter.Int64Counter("fleetcheck.probes",
		metric.WithDescription("Number of probes issued, by status"))
	if err != nil {
		slog.Warn("probe counter unavailable", "err", err)
		probes = noop.Int64Counter{}
	}
	latency, err := meter.Float64Histogram("fleetcheck.probe.duration",
		metric.WithDescription("Probe latency"),
		metric.WithUnit("ms"))
	if err != nil {
		slog.Warn("probe histogram unavailable", "err", err)
		latency = noop.Float64Histogram{}
	}

	e.probes = probes
	e.latency = latency
}

// Probe sends req and classifies the response. Transport failures and status
// mismatches both yield a failing Result; Probe itself never returns an error.
func (e *Engine) Probe(ctx context.Context, req Request) Outcome {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	expect := req.Expect
	if expect == 0 {
		expect = http.StatusOK
	}

	start := time.Now()

	httpReq, err := e.newRequest(ctx, method, req.URL, req.Body)
	if err != nil {
		res := Fail(req.Name, fmt.Sprintf("building request: %v", err), reachHint(req.URL))
		e.observe(ctx, req, &res, start)
		return Outcome{Result: res}
	}

	resp, err := e.httpDo(httpReq)
	if err != nil {
		slog.DebugContext(ctx, "probe transport failure", "probe", req.Name, "url", req.URL, "err", err)
		res := Fail(req.Name, msgTransportFailure, reachHint(req.URL))
		e.observe(ctx, req, &res, start)
		return Outcome{Result: res}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		slog.DebugContext(ctx, "probe body read failed", "probe", req.Name, "err", err)
	}

	var res Result
	if resp.StatusCode == expect {
		res = Pass(req.Name, fmt.Sprintf("HTTP %d", resp.StatusCode))
	} else {
		res = Fail(req.Name,
			fmt.Sprintf("Expected HTTP %d, got %d", expect, resp.StatusCode),
			logsHint(req.Unit))
	}
	e.observe(ctx, req, &res, start)

	return Outcome{Result: res, StatusCode: resp.StatusCode, Body: body}
}

// Reach checks raw TCP reachability of addr. Used for infrastructure units
// that are not probed at protocol level.
func (e *Engine) Reach(ctx context.Context, name, addr string) Result {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	req := Request{Name: name, URL: "tcp://" + addr}

	conn, err := e.dial(ctx, "tcp", addr)
	if err != nil {
		slog.DebugContext(ctx, "tcp reach failed", "probe", name, "addr", addr, "err", err)
		res := Fail(name, fmt.Sprintf("connection to %s failed", addr), fmt.Sprintf("Check that %s accepts TCP connections", addr))
		e.observe(ctx, req, &res, start)
		return res
	}
	conn.Close() //nolint:errcheck

	res := Pass(name, fmt.Sprintf("TCP %s reachable", addr))
	e.observe(ctx, req, &res, start)
	return res
}

// Liveness probes a unit's liveness: GET /healthz for HTTP units, a TCP
// dial for infrastructure units.
func (e *Engine) Liveness(ctx context.Context, ep registry.Endpoint) Result {
	name := ep.Name + " health"
	if !ep.HTTP() {
		return e.Reach(ctx, name, ep.Addr())
	}
	return e.Probe(ctx, Request{
		Name:   name,
		Unit:   ep.Name,
		Method: http.MethodGet,
		URL:    ep.HealthURL(),
		Expect: http.StatusOK,
	}).Result
}

func (e *Engine) newRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding body: %w", err)
		}
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

func (e *Engine) observe(ctx context.Context, req Request, res *Result, start time.Time) {
	elapsed := time.Since(start)
	res.LatencyMs = elapsed.Milliseconds()

	attrs := metric.WithAttributes(
		attribute.String("probe.status", string(res.Status)),
		attribute.String("probe.unit", req.Unit),
	)
	e.probes.Add(ctx, 1, attrs)
	e.latency.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

func reachHint(target string) string {
	return fmt.Sprintf("Check that %s is reachable, e.g. curl -sS %s", target, target)
}

func logsHint(unit string) string {
	if unit == "" {
		return "Inspect the service logs"
	}
	return fmt.Sprintf("Inspect the unit's logs: fleetcheck remediate logs %s", unit)
}
