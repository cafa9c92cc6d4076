package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"pagi-framework/fleetcheck/internal/config"
	"pagi-framework/fleetcheck/internal/probe"
)

const redisProbeName = "redis ping"

// redisPinger is the interface used by RedisClient for health probing.
// It is implemented by the real go-redis client and by test doubles.
type redisPinger interface {
	PingResult(ctx context.Context) (string, error)
	Close() error
}

// realRedisPinger adapts a *redis.Client to redisPinger so tests can inject
// a fake without constructing a *redis.StatusCmd.
type realRedisPinger struct {
	client *redis.Client
}

func (r *realRedisPinger) PingResult(ctx context.Context) (string, error) {
	return r.client.Ping(ctx).Result()
}

func (r *realRedisPinger) Close() error {
	return r.client.Close()
}

// RedisClient probes the fleet's key-value cache with PING, behind a circuit
// breaker.
type RedisClient struct {
	url    string
	cb     *gobreaker.CircuitBreaker
	pinger redisPinger
}

// NewRedisClient creates a RedisClient. No connection is opened at
// construction time; a go-redis client is built on each Probe call.
func NewRedisClient(cfg config.RedisConfig, cb *gobreaker.CircuitBreaker) *RedisClient {
	return &RedisClient{
		url: cfg.URL,
		cb:  cb,
	}
}

// Probe sends PING and expects PONG. After 3 consecutive failures the breaker
// opens and subsequent calls fail immediately with "circuit open".
func (c *RedisClient) Probe(ctx context.Context) probe.Result {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		p := c.pinger
		if p == nil {
			opts, err := redis.ParseURL(c.url)
			if err != nil {
				return nil, fmt.Errorf("parsing redis url: %w", err)
			}
			p = &realRedisPinger{client: redis.NewClient(opts)}
			defer p.Close() //nolint:errcheck
		}

		val, err := p.PingResult(ctx)
		if err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}
		if val != "PONG" {
			return nil, fmt.Errorf("unexpected PING response: %q", val)
		}
		return nil, nil
	})

	return classify(redisProbeName, start, err, "PONG",
		fmt.Sprintf("Check that redis is running at %s: fleetcheck remediate infrastructure", c.url))
}
