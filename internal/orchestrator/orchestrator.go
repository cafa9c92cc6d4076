package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pagi-framework/fleetcheck/internal/probe"
	"pagi-framework/fleetcheck/internal/registry"
	"pagi-framework/fleetcheck/internal/report"
)

// ErrSetupFailure is returned by Run when a required step of a fail-fast
// phase fails. No later step or phase was executed.
var ErrSetupFailure = errors.New("setup failure")

const tracerName = "fleetcheck/orchestrator"

// Prober is satisfied by *probe.Engine.
type Prober interface {
	Probe(ctx context.Context, req probe.Request) probe.Outcome
}

// UnitResolver is satisfied by *registry.Registry.
type UnitResolver interface {
	Lookup(name string) (registry.Endpoint, error)
}

// Orchestrator runs a fixed ordered list of phases, strictly sequentially.
type Orchestrator struct {
	prober Prober
	units  UnitResolver
	phases []Phase
}

// New constructs an Orchestrator over phases.
func New(prober Prober, units UnitResolver, phases []Phase) *Orchestrator {
	return &Orchestrator{
		prober: prober,
		units:  units,
		phases: phases,
	}
}

// Run executes every phase in order, appending each result to rec. It
// returns ErrSetupFailure (wrapped with the failing step) when a fail-fast
// phase aborts; rec is checkpointed before Run returns in every case. The
// caller owns rec and must Close it.
func (o *Orchestrator) Run(ctx context.Context, rec *report.Recorder) (*RunResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "fleetcheck.run")
	defer span.End()

	result := &RunResult{
		State:   RunRunning,
		Phases:  make([]PhaseOutcome, 0, len(o.phases)),
		Handles: make(Handles),
	}
	for _, p := range o.phases {
		result.Phases = append(result.Phases, PhaseOutcome{Key: p.Key, Name: p.Name, State: PhaseNotStarted})
	}

	slog.InfoContext(ctx, "validation run started", "phases", len(o.phases))

	var runErr error
	for i, phase := range o.phases {
		result.Phases[i].State = PhaseRunning

		state, err := o.runPhase(ctx, phase, result.Handles, rec)
		result.Phases[i].State = state

		if cerr := rec.EndPhase(); cerr != nil {
			slog.WarnContext(ctx, "report checkpoint failed", "phase", phase.Key, "err", cerr)
		}

		if err != nil {
			runErr = err
			break
		}
	}

	result.Summary = rec.Summary()
	if runErr != nil {
		result.State = RunAbortedEarly
		span.SetStatus(codes.Error, runErr.Error())
		slog.ErrorContext(ctx, "validation run aborted", "err", runErr)
		rec.Console().Error("Run aborted: %v", runErr)
	} else {
		result.State = RunCompleted
		if result.Summary.Failed > 0 {
			span.SetStatus(codes.Error, "one or more probes failed")
		} else {
			span.SetStatus(codes.Ok, "")
		}
		slog.InfoContext(ctx, "validation run completed",
			"total", result.Summary.Total,
			"passed", result.Summary.Passed,
			"failed", result.Summary.Failed,
			"skipped", result.Summary.Skipped,
		)
	}
	span.SetAttributes(
		attribute.String("run.state", string(result.State)),
		attribute.Int("run.failed", result.Summary.Failed),
	)

	return result, runErr
}

func (o *Orchestrator) runPhase(ctx context.Context, phase Phase, handles Handles, rec *report.Recorder) (PhaseState, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "fleetcheck.phase",
		trace.WithAttributes(
			attribute.String("phase.key", phase.Key),
			attribute.String("phase.policy", phase.Policy.String()),
		))
	defer span.End()

	rec.BeginPhase(phase.Key, phase.Name)
	slog.InfoContext(ctx, "phase started", "phase", phase.Key, "policy", phase.Policy.String())

	// A missing prerequisite or a disabled gate turns every domain step
	// into a Skip without a network call. Liveness steps still run.
	skipReason := ""
	if missing := handles.Missing(phase.Requires...); len(missing) > 0 {
		skipReason = "missing prerequisite: " + strings.Join(missing, ", ")
	} else {
		for _, g := range phase.Gates {
			if !g.Enabled {
				skipReason = g.Name + " not set"
				break
			}
		}
	}

	domainSteps, skipped := 0, 0
	for _, step := range phase.Steps {
		if !step.Liveness {
			domainSteps++
		}

		var res probe.Result
		if skipReason != "" && !step.Liveness {
			res = probe.Skip(step.Name, skipReason)
			skipped++
		} else {
			res = o.runStep(ctx, step, handles)
		}
		rec.Record(res)

		if res.Status == probe.StatusFail && phase.Policy == FailFast && step.Required {
			span.SetStatus(codes.Error, res.Message)
			slog.ErrorContext(ctx, "required step failed", "phase", phase.Key, "step", step.Name, "message", res.Message)
			return PhaseAborted, fmt.Errorf("%w: phase %s, step %q: %s", ErrSetupFailure, phase.Key, step.Name, res.Message)
		}
	}

	if skipReason != "" && domainSteps > 0 && skipped == domainSteps {
		slog.InfoContext(ctx, "phase skipped", "phase", phase.Key, "reason", skipReason)
		return PhaseSkipped, nil
	}

	slog.InfoContext(ctx, "phase completed", "phase", phase.Key)
	return PhaseCompleted, nil
}

// runStep issues one step and classifies it. It never returns an error:
// every failure mode becomes a failing record.
func (o *Orchestrator) runStep(ctx context.Context, step Step, handles Handles) probe.Result {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "fleetcheck.step",
		trace.WithAttributes(
			attribute.String("step.name", step.Name),
			attribute.String("step.unit", step.Unit),
		))
	defer span.End()

	res := o.execute(ctx, step, handles)

	span.SetAttributes(attribute.String("step.status", string(res.Status)))
	if res.Status == probe.StatusFail {
		span.SetStatus(codes.Error, res.Message)
	}
	return res
}

func (o *Orchestrator) execute(ctx context.Context, step Step, handles Handles) probe.Result {
	if missing := handles.Missing(step.Requires...); len(missing) > 0 {
		return probe.Skip(step.Name, "missing prerequisite: "+strings.Join(missing, ", "))
	}

	if step.Check != nil {
		res := step.Check(ctx)
		res.Name = step.Name
		return res
	}

	ep, err := o.units.Lookup(step.Unit)
	if err != nil {
		return probe.Fail(step.Name, err.Error(), "Add the unit to the registry configuration")
	}

	path, missing := handles.Expand(step.Path)
	if len(missing) > 0 {
		return probe.Skip(step.Name, "missing prerequisite: "+strings.Join(missing, ", "))
	}

	var body any
	if step.Body != nil {
		body = step.Body(handles)
	}

	method := step.Method
	if method == "" {
		method = http.MethodGet
	}

	out := o.prober.Probe(ctx, probe.Request{
		Name:   step.Name,
		Unit:   step.Unit,
		Method: method,
		URL:    ep.URL(path),
		Expect: step.Expect,
		Body:   body,
	})
	res := out.Result
	if res.Status != probe.StatusPass {
		return res
	}

	if step.Contains != "" && !bytes.Contains(out.Body, []byte(step.Contains)) {
		return res.Downgrade(
			fmt.Sprintf("%q not found in response", step.Contains),
			fmt.Sprintf("Check that %s registers %s", step.Unit, step.Contains),
		)
	}

	for _, ex := range step.Extract {
		v, ok := probe.ExtractField(out.Body, ex.Field)
		if !ok {
			slog.WarnContext(ctx, "field extraction failed", "step", step.Name, "field", ex.Field)
			return res.Downgrade(
				fmt.Sprintf("%s missing from response", ex.Field),
				fmt.Sprintf("Inspect the response of %s %s", method, ep.URL(path)),
			)
		}
		handles[ex.Handle] = v
	}

	return res
}
