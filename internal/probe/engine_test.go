package probe

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagi-framework/fleetcheck/internal/registry"
)

func TestProbe_StatusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		serverCode  int
		expect      int
		wantStatus  Status
		wantMessage string
		wantHint    bool
	}{
		{
			name:        "expected 200 got 200",
			serverCode:  http.StatusOK,
			expect:      http.StatusOK,
			wantStatus:  StatusPass,
			wantMessage: "HTTP 200",
		},
		{
			name:        "expected 201 got 201",
			serverCode:  http.StatusCreated,
			expect:      http.StatusCreated,
			wantStatus:  StatusPass,
			wantMessage: "HTTP 201",
		},
		{
			name:        "expected 200 got 503",
			serverCode:  http.StatusServiceUnavailable,
			expect:      http.StatusOK,
			wantStatus:  StatusFail,
			wantMessage: "Expected HTTP 200, got 503",
			wantHint:    true,
		},
		{
			name:        "zero expect defaults to 200",
			serverCode:  http.StatusOK,
			wantStatus:  StatusPass,
			wantMessage: "HTTP 200",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.serverCode)
			}))
			defer srv.Close()

			e := NewEngine(time.Second)
			out := e.Probe(context.Background(), Request{
				Name:   "probe",
				Unit:   "pagi-identity-service",
				URL:    srv.URL,
				Expect: tc.expect,
			})

			assert.Equal(t, tc.wantStatus, out.Result.Status)
			assert.Equal(t, tc.wantMessage, out.Result.Message)
			assert.Equal(t, tc.serverCode, out.StatusCode)
			assert.False(t, out.Result.Timestamp.IsZero())
			if tc.wantHint {
				assert.Contains(t, out.Result.Remediation, "remediate logs pagi-identity-service")
			} else {
				assert.Empty(t, out.Result.Remediation)
			}
		})
	}
}

func TestProbe_TransportFailure(t *testing.T) {
	t.Parallel()

	e := NewEngine(time.Second)
	e.httpDo = func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	}

	out := e.Probe(context.Background(), Request{Name: "down", URL: "http://127.0.0.1:1/healthz"})

	assert.Equal(t, StatusFail, out.Result.Status)
	assert.Equal(t, "request failed or timed out", out.Result.Message)
	assert.Contains(t, out.Result.Remediation, "http://127.0.0.1:1/healthz")
	assert.Nil(t, out.Body)
}

func TestProbe_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	e := NewEngine(50 * time.Millisecond)
	out := e.Probe(context.Background(), Request{Name: "slow", URL: srv.URL})

	assert.Equal(t, StatusFail, out.Result.Status)
	assert.Equal(t, "request failed or timed out", out.Result.Message)
}

func TestProbe_SendsJSONBody(t *testing.T) {
	t.Parallel()

	type seen struct {
		method, contentType, requestID string
		body                           map[string]string
	}
	seenCh := make(chan seen, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := seen{
			method:      r.Method,
			contentType: r.Header.Get("Content-Type"),
			requestID:   r.Header.Get("X-Request-ID"),
		}
		_ = json.NewDecoder(r.Body).Decode(&s.body)
		seenCh <- s
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"twin_id":"abc","did":"did:key:z6Mk"}`))
	}))
	defer srv.Close()

	e := NewEngine(time.Second)
	out := e.Probe(context.Background(), Request{
		Name:   "create twin",
		Method: http.MethodPost,
		URL:    srv.URL + "/twins",
		Expect: http.StatusCreated,
		Body:   map[string]string{"state": "{}"},
	})

	require.Equal(t, StatusPass, out.Result.Status)
	s := <-seenCh
	assert.Equal(t, http.MethodPost, s.method)
	assert.Equal(t, "application/json", s.contentType)
	assert.NotEmpty(t, s.requestID)
	assert.Equal(t, "{}", s.body["state"])

	id, ok := ExtractField(out.Body, "twin_id")
	assert.True(t, ok)
	assert.Equal(t, "abc", id)
}

func TestReach(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	e := NewEngine(time.Second)

	res := e.Reach(context.Background(), "broker", ln.Addr().String())
	assert.Equal(t, StatusPass, res.Status)
	assert.True(t, strings.HasPrefix(res.Message, "TCP "))

	e.dial = func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}
	res = e.Reach(context.Background(), "broker", "127.0.0.1:9092")
	assert.Equal(t, StatusFail, res.Status)
	assert.Equal(t, "connection to 127.0.0.1:9092 failed", res.Message)
	assert.NotEmpty(t, res.Remediation)
}

func TestLiveness_HTTPAndTCP(t *testing.T) {
	t.Parallel()

	var healthCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == registry.HealthPath {
			healthCalls.Add(1)
			_, _ = w.Write([]byte("ok"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewEngine(time.Second)

	res := e.Liveness(context.Background(), registry.Endpoint{
		Name:    "pagi-did-plugin",
		Kind:    registry.KindPlugin,
		BaseURL: srv.URL,
	})
	assert.Equal(t, StatusPass, res.Status)
	assert.Equal(t, "pagi-did-plugin health", res.Name)
	assert.Equal(t, int32(1), healthCalls.Load())

	var dialed string
	e.dial = func(_ context.Context, _, addr string) (net.Conn, error) {
		dialed = addr
		return nil, errors.New("refused")
	}
	res = e.Liveness(context.Background(), registry.Endpoint{
		Name:    "redis",
		Kind:    registry.KindInfrastructure,
		BaseURL: "http://localhost",
		Port:    6379,
	})
	assert.Equal(t, StatusFail, res.Status)
	assert.Equal(t, "localhost:6379", dialed)
}

func TestResult_Downgrade(t *testing.T) {
	t.Parallel()

	r := Pass("create twin", "HTTP 201")
	r.LatencyMs = 12

	d := r.Downgrade("twin_id missing from response", "check the identity service")
	assert.Equal(t, StatusFail, d.Status)
	assert.Equal(t, "create twin", d.Name)
	assert.Equal(t, int64(12), d.LatencyMs)
	assert.False(t, d.OK())
}
