// Package probe issues single classified network checks against fleet units.
package probe

import "time"

// Status is the classification of one probe.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// Result is one classified probe record. It is created once and never
// mutated after it has been handed to a report.Recorder.
type Result struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Message     string    `json:"message,omitempty"`
	Remediation string    `json:"remediation,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	LatencyMs   int64     `json:"-"`
}

// OK reports whether the result passed.
func (r Result) OK() bool { return r.Status == StatusPass }

// Pass builds a passing record stamped with the current time.
func Pass(name, message string) Result {
	return Result{Name: name, Status: StatusPass, Message: message, Timestamp: time.Now().UTC()}
}

// Fail builds a failing record. hint may be empty.
func Fail(name, message, hint string) Result {
	return Result{Name: name, Status: StatusFail, Message: message, Remediation: hint, Timestamp: time.Now().UTC()}
}

// Skip builds a skipped record.
func Skip(name, message string) Result {
	return Result{Name: name, Status: StatusSkip, Message: message, Timestamp: time.Now().UTC()}
}

// Downgrade turns r into a failure carrying message and hint, keeping its
// name and latency.
func (r Result) Downgrade(message, hint string) Result {
	f := Fail(r.Name, message, hint)
	f.LatencyMs = r.LatencyMs
	return f
}
