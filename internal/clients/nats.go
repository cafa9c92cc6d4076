package clients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"

	"pagi-framework/fleetcheck/internal/config"
	"pagi-framework/fleetcheck/internal/probe"
)

const natsProbeName = "nats connectivity"

// jsContext is the subset of nats.JetStreamContext used by the probe.
type jsContext interface {
	AccountInfo(opts ...nats.JSOpt) (*nats.AccountInfo, error)
}

// NATSClient probes the optional NATS message bus. An empty URL means the
// deployment does not run NATS and the probe is skipped.
type NATSClient struct {
	url   string
	cb    *gobreaker.CircuitBreaker
	newJS func(url string) (jsContext, func(), error)
}

// NewNATSClient constructs a NATSClient. Connections are opened lazily inside
// Probe.
func NewNATSClient(cfg config.NATSConfig, cb *gobreaker.CircuitBreaker) *NATSClient {
	return &NATSClient{
		url:   cfg.URL,
		cb:    cb,
		newJS: realNewJS,
	}
}

// Probe connects to NATS and queries the JetStream account. A server with
// JetStream disabled still counts as reachable.
func (c *NATSClient) Probe(ctx context.Context) probe.Result {
	if c.url == "" {
		return probe.Skip(natsProbeName, "NATS_URL not set")
	}

	start := time.Now()
	jetstream := true

	_, err := c.cb.Execute(func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		js, cleanup, err := c.newJS(c.url)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		defer cleanup()

		if _, err := js.AccountInfo(nats.Context(ctx)); err != nil {
			if errors.Is(err, nats.ErrJetStreamNotEnabled) || errors.Is(err, nats.ErrJetStreamNotEnabledForAccount) {
				jetstream = false
				return nil, nil
			}
			return nil, fmt.Errorf("account info: %w", err)
		}
		return nil, nil
	})

	msg := "connected, JetStream enabled"
	if !jetstream {
		msg = "connected, JetStream disabled"
	}
	return classify(natsProbeName, start, err, msg,
		fmt.Sprintf("Check that NATS is reachable at %s", c.url))
}

// realNewJS opens a real NATS connection and returns a JetStreamContext plus a
// cleanup function that closes the connection.
func realNewJS(url string) (jsContext, func(), error) {
	nc, err := nats.Connect(url, nats.Name("fleetcheck"), nats.Timeout(5*time.Second))
	if err != nil {
		return nil, func() {}, fmt.Errorf("nats connect %s: %w", url, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, func() {}, fmt.Errorf("nats jetstream context: %w", err)
	}

	return js, func() { nc.Close() }, nil
}
