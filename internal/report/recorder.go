package report

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pagi-framework/fleetcheck/internal/probe"
)

// Recorder is the single run context: an append-only list of phase records,
// the running summary, and the two outputs fed from them. Every Record call
// writes a console line immediately; the JSON document is checkpointed to
// disk whenever a phase ends and once more on Close, so the file on disk is
// always a complete document for the prefix of the run that finished.
type Recorder struct {
	mu      sync.Mutex
	doc     Document
	current int // index into doc.Phases, -1 outside a phase
	path    string
	console *Console
	closed  bool
}

// NewRecorder starts a run against baseURL. path may be empty to keep the
// document in memory only.
func NewRecorder(path string, shape Shape, baseURL string, console *Console) *Recorder {
	if console == nil {
		console = Discard()
	}
	return &Recorder{
		doc: Document{
			Timestamp: time.Now().UTC(),
			BaseURL:   baseURL,
			Shape:     shape,
		},
		current: -1,
		path:    path,
		console: console,
	}
}

// Console returns the recorder's line log.
func (r *Recorder) Console() *Console { return r.console }

// BeginPhase opens a new phase record; later results are appended to it.
func (r *Recorder) BeginPhase(key, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.doc.Phases = append(r.doc.Phases, PhaseRecord{Key: key, Name: name, Records: []probe.Result{}})
	r.current = len(r.doc.Phases) - 1
	r.console.Info("=== %s ===", name)
}

// Record appends res to the open phase and updates the summary. Results
// recorded outside a phase go into an implicit "general" phase.
func (r *Recorder) Record(res probe.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current < 0 {
		r.doc.Phases = append(r.doc.Phases, PhaseRecord{Key: "general", Name: "General", Records: []probe.Result{}})
		r.current = len(r.doc.Phases) - 1
	}
	if res.Timestamp.IsZero() {
		res.Timestamp = time.Now().UTC()
	}

	p := &r.doc.Phases[r.current]
	p.Records = append(p.Records, res)
	r.doc.Summary.add(res.Status)

	slog.Debug("probe recorded", "phase", p.Key, "name", res.Name, "status", res.Status, "latency_ms", res.LatencyMs)
	r.writeLine(res)
}

// EndPhase closes the open phase and checkpoints the document.
func (r *Recorder) EndPhase() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.current = -1
	return r.flushLocked()
}

// Close writes the final document. It is safe to call more than once and is
// meant to be deferred by the caller that owns the run.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.current = -1
	return r.flushLocked()
}

// Summary returns the running totals.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.Summary
}

// Document returns a deep copy of the report so far.
func (r *Recorder) Document() Document {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := r.doc
	doc.Phases = make([]PhaseRecord, len(r.doc.Phases))
	for i, p := range r.doc.Phases {
		p.Records = append([]probe.Result(nil), p.Records...)
		doc.Phases[i] = p
	}
	return doc
}

// Path is where the document is written.
func (r *Recorder) Path() string { return r.path }

func (r *Recorder) writeLine(res probe.Result) {
	line := res.Name
	if res.Message != "" {
		line += ": " + res.Message
	}

	switch res.Status {
	case probe.StatusPass:
		r.console.Pass("%s", line)
	case probe.StatusSkip:
		r.console.Skip("%s", line)
	default:
		r.console.Fail("%s", line)
		if res.Remediation != "" {
			r.console.Info("  remediation: %s", res.Remediation)
		}
	}
}

func (r *Recorder) flushLocked() error {
	if r.path == "" {
		return nil
	}

	raw, err := json.MarshalIndent(r.doc, "", "  ")
	if err != nil {
		return err
	}
	if err := writeAtomic(r.path, append(raw, '\n')); err != nil {
		slog.Error("report checkpoint failed", "path", r.path, "err", err)
		return fmt.Errorf("writing report %s: %w", r.path, err)
	}
	slog.Debug("report checkpoint written", "path", r.path, "total", r.doc.Summary.Total)
	return nil
}

// writeAtomic replaces path with data via a temp file in the same directory.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
