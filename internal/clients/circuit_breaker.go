package clients

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"pagi-framework/fleetcheck/internal/probe"
)

// NewCircuitBreaker returns a gobreaker configured to trip after 3 consecutive
// failures and reset after 30 seconds in the open state.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}

// classify turns the outcome of a breaker-wrapped check into a probe record.
func classify(name string, start time.Time, err error, okMsg, hint string) probe.Result {
	latency := time.Since(start).Milliseconds()

	if err != nil {
		errMsg := err.Error()
		if errors.Is(err, gobreaker.ErrOpenState) {
			errMsg = "circuit open"
		}
		res := probe.Fail(name, errMsg, hint)
		res.LatencyMs = latency
		return res
	}

	res := probe.Pass(name, okMsg)
	res.LatencyMs = latency
	return res
}
