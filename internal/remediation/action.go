package remediation

import (
	"errors"
	"fmt"
	"time"

	"pagi-framework/fleetcheck/internal/registry"
)

var (
	// ErrUnknownUnit is returned for a unit name the registry does not know.
	ErrUnknownUnit = registry.ErrUnknownUnit

	// ErrRemediationIncomplete is returned when a supervisor command could not
	// be issued or a unit finished unhealthy without a restart.
	ErrRemediationIncomplete = errors.New("remediation incomplete")
)

// ActionKind is one supervisor interaction.
type ActionKind string

const (
	ActionStart      ActionKind = "start"
	ActionPollHealth ActionKind = "poll-health"
	ActionRestart    ActionKind = "restart"
	ActionWarmup     ActionKind = "warm-up"
)

// Action is a single step of a remediation plan. Plans are built and run
// within one controller invocation.
type Action struct {
	Kind ActionKind
	Unit string

	// MaxAttempts and Interval bound an ActionPollHealth. Interval is the
	// wait of an ActionWarmup.
	MaxAttempts int
	Interval    time.Duration

	// IfUnhealthy limits an ActionRestart to units whose last poll failed.
	IfUnhealthy bool

	// Label is shown while an ActionWarmup waits.
	Label string
}

func (a Action) String() string {
	if a.Kind == ActionWarmup {
		return fmt.Sprintf("%s %s", a.Kind, a.Interval)
	}
	return fmt.Sprintf("%s %s", a.Kind, a.Unit)
}

// UnitState tracks a unit through one remediation invocation.
type UnitState string

const (
	StateUnknown       UnitState = "unknown"
	StateStarting      UnitState = "starting"
	StateStarted       UnitState = "started"
	StatePolling       UnitState = "polling"
	StateHealthy       UnitState = "healthy"
	StateUnhealthy     UnitState = "unhealthy"
	StateStartFailed   UnitState = "start-failed"
	StateRestarted     UnitState = "restarted"
	StateRestartFailed UnitState = "restart-failed"
)

// Settled reports whether the state needs no operator follow-up. Started
// units were never polled and restarted units are never re-verified; both
// count as settled.
func (s UnitState) Settled() bool {
	switch s {
	case StateHealthy, StateStarted, StateRestarted:
		return true
	default:
		return false
	}
}

// Outcome is the final state of one unit.
type Outcome struct {
	Unit     string
	Kind     registry.Kind
	State    UnitState
	Attempts int
	Detail   string
}
