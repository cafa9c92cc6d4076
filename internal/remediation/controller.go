// Package remediation starts, polls and restarts fleet units through the
// external supervisor. It runs independently of the validation orchestrator.
package remediation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/briandowns/spinner"

	"pagi-framework/fleetcheck/internal/probe"
	"pagi-framework/fleetcheck/internal/registry"
	"pagi-framework/fleetcheck/internal/report"
	"pagi-framework/fleetcheck/internal/supervisor"
)

// Prober is satisfied by *probe.Engine.
type Prober interface {
	Liveness(ctx context.Context, ep registry.Endpoint) probe.Result
}

// Units is satisfied by *registry.Registry.
type Units interface {
	Lookup(name string) (registry.Endpoint, error)
	ByKind(kind registry.Kind) []registry.Endpoint
	Critical() []registry.Endpoint
}

// Options tunes polling and warm-up.
type Options struct {
	MaxAttempts int
	Interval    time.Duration
	Warmup      time.Duration
	LogLines    int
}

// Controller drives remediation for a fleet. Calls are strictly sequential.
type Controller struct {
	rt      supervisor.Runtime
	units   Units
	prober  Prober
	console *report.Console
	opts    Options

	out   io.Writer
	sleep func(ctx context.Context, d time.Duration) error
	warm  func(ctx context.Context, d time.Duration, label string) error
}

func NewController(rt supervisor.Runtime, units Units, prober Prober, console *report.Console, opts Options) *Controller {
	if console == nil {
		console = report.Discard()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 30
	}
	if opts.LogLines <= 0 {
		opts.LogLines = 100
	}
	c := &Controller{
		rt:      rt,
		units:   units,
		prober:  prober,
		console: console,
		opts:    opts,
		out:     console.Writer(),
		sleep:   sleepContext,
	}
	c.warm = c.spin
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// spin waits d behind a terminal spinner. The spinner stays silent when
// stderr is not a terminal.
func (c *Controller) spin(ctx context.Context, d time.Duration, label string) error {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + label
	s.Start()
	defer s.Stop()
	return c.sleep(ctx, d)
}

// StartUnit issues one start command. A failure is terminal for the unit in
// this invocation.
func (c *Controller) StartUnit(ctx context.Context, name string) error {
	if _, err := c.units.Lookup(name); err != nil {
		return err
	}
	c.console.Info("Starting %s", name)
	if err := c.rt.Start(ctx, name); err != nil {
		slog.ErrorContext(ctx, "start command failed", "unit", name, "err", err)
		c.console.Fail("Could not start %s: %v", name, err)
		return fmt.Errorf("starting %s: %w", name, err)
	}
	return nil
}

// PollHealth probes the unit's liveness up to maxAttempts times, sleeping
// interval between attempts. It stops at the first pass.
func (c *Controller) PollHealth(ctx context.Context, name string, maxAttempts int, interval time.Duration) (Outcome, error) {
	ep, err := c.units.Lookup(name)
	if err != nil {
		return Outcome{Unit: name, State: StateUnknown}, err
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	out := Outcome{Unit: name, Kind: ep.Kind, State: StatePolling}
	c.console.Info("Waiting for %s to become healthy (max %d attempts)", name, maxAttempts)

	var last probe.Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out.Attempts = attempt
		last = c.prober.Liveness(ctx, ep)
		if last.OK() {
			out.State = StateHealthy
			c.console.Pass("%s is healthy (attempt %d)", name, attempt)
			return out, nil
		}
		slog.DebugContext(ctx, "unit not healthy yet", "unit", name, "attempt", attempt, "message", last.Message)
		if attempt < maxAttempts {
			if err := c.sleep(ctx, interval); err != nil {
				out.State = StateUnhealthy
				out.Detail = err.Error()
				return out, err
			}
		}
	}

	out.State = StateUnhealthy
	out.Detail = last.Message
	c.console.Fail("%s did not become healthy after %d attempts: %s", name, maxAttempts, last.Message)
	return out, nil
}

// RestartUnit issues one restart command. The unit's health is not checked
// afterwards.
func (c *Controller) RestartUnit(ctx context.Context, name string) error {
	if _, err := c.units.Lookup(name); err != nil {
		return err
	}
	c.console.Info("Restarting %s", name)
	if err := c.rt.Restart(ctx, name); err != nil {
		slog.ErrorContext(ctx, "restart command failed", "unit", name, "err", err)
		c.console.Fail("Could not restart %s: %v", name, err)
		return fmt.Errorf("restarting %s: %w", name, err)
	}
	c.console.Pass("Restart issued for %s", name)
	return nil
}

// ViewLogs writes the last lines of the unit's log to the console writer.
func (c *Controller) ViewLogs(ctx context.Context, name string, lines int) error {
	if _, err := c.units.Lookup(name); err != nil {
		return err
	}
	if lines <= 0 {
		lines = c.opts.LogLines
	}
	c.console.Info("Last %d log lines of %s", lines, name)
	if err := c.rt.Logs(ctx, name, lines, c.out); err != nil {
		return fmt.Errorf("reading logs of %s: %w", name, err)
	}
	return nil
}

// RemediateAll runs the full recovery sequence: start infrastructure, poll
// it, start core services, warm up, start plugins, warm up, poll the critical
// units and restart any that are unhealthy. Restarted units are not
// re-verified.
func (c *Controller) RemediateAll(ctx context.Context) ([]Outcome, error) {
	t := newTracker()
	if err := c.apply(ctx, t, c.planAll()); err != nil {
		return t.list(), err
	}

	if restarted := t.count(StateRestarted); restarted > 0 {
		c.console.Info("%d unit(s) restarted without re-verification; run fleetcheck to confirm the fleet is healthy", restarted)
	}
	c.console.Info("Remediation complete")

	return c.finish(t)
}

// RemediateGroup starts every unit of one kind and polls each once the group
// is up. Core services and plugins get the warm-up delay before polling. No
// restarts are issued.
func (c *Controller) RemediateGroup(ctx context.Context, kind registry.Kind) ([]Outcome, error) {
	t := newTracker()
	if err := c.apply(ctx, t, c.planGroup(kind)); err != nil {
		return t.list(), err
	}
	return c.finish(t)
}

func (c *Controller) planAll() []Action {
	infra := c.units.ByKind(registry.KindInfrastructure)

	var plan []Action
	plan = append(plan, startActions(infra)...)
	plan = append(plan, c.pollActions(infra)...)
	plan = append(plan, startActions(c.units.ByKind(registry.KindCore))...)
	plan = append(plan, c.warmup("core services warming up"))
	plan = append(plan, startActions(c.units.ByKind(registry.KindPlugin))...)
	plan = append(plan, c.warmup("plugins warming up"))
	for _, ep := range c.units.Critical() {
		plan = append(plan, c.pollAction(ep.Name), Action{Kind: ActionRestart, Unit: ep.Name, IfUnhealthy: true})
	}
	return plan
}

func (c *Controller) planGroup(kind registry.Kind) []Action {
	units := c.units.ByKind(kind)

	plan := startActions(units)
	if kind != registry.KindInfrastructure {
		plan = append(plan, c.warmup(string(kind)+" units warming up"))
	}
	return append(plan, c.pollActions(units)...)
}

func startActions(eps []registry.Endpoint) []Action {
	out := make([]Action, 0, len(eps))
	for _, ep := range eps {
		out = append(out, Action{Kind: ActionStart, Unit: ep.Name})
	}
	return out
}

func (c *Controller) pollActions(eps []registry.Endpoint) []Action {
	out := make([]Action, 0, len(eps))
	for _, ep := range eps {
		out = append(out, c.pollAction(ep.Name))
	}
	return out
}

func (c *Controller) pollAction(unit string) Action {
	return Action{Kind: ActionPollHealth, Unit: unit, MaxAttempts: c.opts.MaxAttempts, Interval: c.opts.Interval}
}

func (c *Controller) warmup(label string) Action {
	return Action{Kind: ActionWarmup, Interval: c.opts.Warmup, Label: label}
}

// apply runs plan in order. A unit whose start failed is skipped by its later
// actions. Only context cancellation stops the plan early.
func (c *Controller) apply(ctx context.Context, t *tracker, plan []Action) error {
	for _, a := range plan {
		slog.DebugContext(ctx, "remediation action", "action", a.String())

		if a.Kind == ActionWarmup {
			if err := c.warm(ctx, a.Interval, a.Label); err != nil {
				return err
			}
			continue
		}

		ep, err := c.units.Lookup(a.Unit)
		if err != nil {
			return err
		}
		if t.get(ep.Name).State == StateStartFailed {
			continue
		}

		switch a.Kind {
		case ActionStart:
			t.set(ep.Name, ep.Kind, StateStarting, "")
			if err := c.StartUnit(ctx, ep.Name); err != nil {
				t.set(ep.Name, ep.Kind, StateStartFailed, err.Error())
				continue
			}
			t.set(ep.Name, ep.Kind, StateStarted, "")

		case ActionPollHealth:
			out, err := c.PollHealth(ctx, ep.Name, a.MaxAttempts, a.Interval)
			t.put(out)
			if err != nil {
				return err
			}

		case ActionRestart:
			if a.IfUnhealthy && t.get(ep.Name).State != StateUnhealthy {
				continue
			}
			if err := c.RestartUnit(ctx, ep.Name); err != nil {
				t.set(ep.Name, ep.Kind, StateRestartFailed, err.Error())
				continue
			}
			t.set(ep.Name, ep.Kind, StateRestarted, "restart issued, not re-verified")

		default:
			return fmt.Errorf("unknown remediation action %q", a.Kind)
		}
	}
	return nil
}

func (c *Controller) finish(t *tracker) ([]Outcome, error) {
	outcomes := t.list()
	RenderOutcomes(c.out, outcomes)
	for _, o := range outcomes {
		if !o.State.Settled() {
			return outcomes, ErrRemediationIncomplete
		}
	}
	return outcomes, nil
}

// tracker keeps outcomes in first-seen order.
type tracker struct {
	order []string
	byKey map[string]Outcome
}

func newTracker() *tracker {
	return &tracker{byKey: make(map[string]Outcome)}
}

// put records a poll outcome. Attempts accumulate across polls of the same
// unit.
func (t *tracker) put(o Outcome) {
	prev, seen := t.byKey[o.Unit]
	if !seen {
		t.order = append(t.order, o.Unit)
	}
	o.Attempts += prev.Attempts
	t.byKey[o.Unit] = o
}

func (t *tracker) set(name string, kind registry.Kind, state UnitState, detail string) {
	o, seen := t.byKey[name]
	if !seen {
		t.order = append(t.order, name)
	}
	o.Unit, o.Kind, o.State, o.Detail = name, kind, state, detail
	t.byKey[name] = o
}

func (t *tracker) get(name string) Outcome {
	return t.byKey[name]
}

func (t *tracker) count(state UnitState) int {
	n := 0
	for _, o := range t.byKey {
		if o.State == state {
			n++
		}
	}
	return n
}

func (t *tracker) list() []Outcome {
	out := make([]Outcome, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.byKey[name])
	}
	return out
}
