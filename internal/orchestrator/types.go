package orchestrator

import (
	"context"
	"regexp"
	"sort"

	"pagi-framework/fleetcheck/internal/probe"
	"pagi-framework/fleetcheck/internal/report"
)

// Policy decides whether a failing required step aborts the run.
type Policy int

const (
	// FailSoft records failures and keeps going.
	FailSoft Policy = iota
	// FailFast aborts the whole run when a required step fails.
	FailFast
)

func (p Policy) String() string {
	if p == FailFast {
		return "fail-fast"
	}
	return "fail-soft"
}

// PhaseState is the lifecycle of one phase within a run.
type PhaseState string

const (
	PhaseNotStarted PhaseState = "not-started"
	PhaseRunning    PhaseState = "running"
	PhaseCompleted  PhaseState = "completed"
	PhaseSkipped    PhaseState = "skipped"
	PhaseAborted    PhaseState = "aborted"
)

// RunState is the lifecycle of a whole run.
type RunState string

const (
	RunRunning      RunState = "running"
	RunCompleted    RunState = "completed"
	RunAbortedEarly RunState = "aborted-early"
)

// Handles are entity identifiers discovered during a run, keyed by handle
// name. A handle is written once by the step that extracts it.
type Handles map[string]string

var placeholder = regexp.MustCompile(`\{([a-z0-9_]+)\}`)

// Missing returns the names in keys that have no value, sorted.
func (h Handles) Missing(keys ...string) []string {
	var missing []string
	for _, k := range keys {
		if h[k] == "" {
			missing = append(missing, k)
		}
	}
	sort.Strings(missing)
	return missing
}

// Expand substitutes {name} placeholders in s. Unknown placeholders are left
// in place and reported.
func (h Handles) Expand(s string) (string, []string) {
	var missing []string
	out := placeholder.ReplaceAllStringFunc(s, func(m string) string {
		key := m[1 : len(m)-1]
		if v := h[key]; v != "" {
			return v
		}
		missing = append(missing, key)
		return m
	})
	return out, missing
}

// Gate enables a phase only when an optional feature is configured. Name is
// the variable an operator sets to enable it.
type Gate struct {
	Name    string
	Enabled bool
}

// Extraction copies a response field into a handle.
type Extraction struct {
	Handle string
	Field  string
}

// Step is one probe within a phase. HTTP steps name a registry Unit and a
// Path; Check steps run an arbitrary classified check instead.
type Step struct {
	Name   string
	Unit   string
	Method string
	Path   string // may contain {handle} placeholders
	Body   func(h Handles) any
	Expect int

	// Requires lists handles that must exist before the step is issued.
	Requires []string
	// Extract populates handles from a passing response. A missing field
	// downgrades the step to a failure.
	Extract []Extraction
	// Contains, when set, must appear in a passing response body.
	Contains string

	Check func(ctx context.Context) probe.Result

	// Required marks steps whose failure aborts a fail-fast phase.
	Required bool
	// Liveness steps run even when the phase's prerequisites or gates are
	// not met.
	Liveness bool
}

// Phase is an ordered group of steps.
type Phase struct {
	Key      string
	Name     string
	Policy   Policy
	Requires []string
	Gates    []Gate
	Steps    []Step
}

// PhaseOutcome is the final state of one phase.
type PhaseOutcome struct {
	Key   string     `json:"key"`
	Name  string     `json:"name"`
	State PhaseState `json:"state"`
}

// RunResult is returned by Orchestrator.Run.
type RunResult struct {
	State   RunState       `json:"state"`
	Phases  []PhaseOutcome `json:"phases"`
	Summary report.Summary `json:"summary"`
	Handles Handles        `json:"-"`
}

// Failed reports whether any record failed. The process exit code follows it.
func (r *RunResult) Failed() bool {
	return r.State == RunAbortedEarly || r.Summary.Failed > 0
}
