// Package report accumulates classified probe results and renders them as a
// human line log, a summary table and a structured JSON document.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"pagi-framework/fleetcheck/internal/probe"
)

// Shape selects the layout of the records in the JSON document.
type Shape string

const (
	// ShapePhases nests records under their phase key.
	ShapePhases Shape = "phases"
	// ShapeTests emits one flat array of records.
	ShapeTests Shape = "tests"
)

// ParseShape validates a shape name.
func ParseShape(s string) (Shape, error) {
	switch Shape(s) {
	case ShapePhases, ShapeTests:
		return Shape(s), nil
	default:
		return "", fmt.Errorf("unknown report shape %q", s)
	}
}

// Summary holds the run totals. Total always equals Passed+Failed+Skipped.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

func (s *Summary) add(status probe.Status) {
	s.Total++
	switch status {
	case probe.StatusPass:
		s.Passed++
	case probe.StatusSkip:
		s.Skipped++
	default:
		s.Failed++
	}
}

// PhaseRecord is the ordered list of results produced by one phase.
type PhaseRecord struct {
	Key     string
	Name    string
	Records []probe.Result
}

// Summary counts the phase's own records.
func (p PhaseRecord) Summary() Summary {
	var s Summary
	for _, r := range p.Records {
		s.add(r.Status)
	}
	return s
}

// Slowest returns the highest latency among the phase's records, in
// milliseconds.
func (p PhaseRecord) Slowest() int64 {
	var slowest int64
	for _, r := range p.Records {
		if r.LatencyMs > slowest {
			slowest = r.LatencyMs
		}
	}
	return slowest
}

// Document is the structured report. Its JSON form is
//
//	{"timestamp": ..., "base_url": ..., "phases"|"tests": ..., "summary": {...}}
//
// with phase keys emitted in run order.
type Document struct {
	Timestamp time.Time
	BaseURL   string
	Shape     Shape
	Phases    []PhaseRecord
	Summary   Summary
}

// Records returns every record across all phases in run order.
func (d Document) Records() []probe.Result {
	var out []probe.Result
	for _, p := range d.Phases {
		out = append(out, p.Records...)
	}
	return out
}

// MarshalJSON writes the document with a fixed key order.
func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(`{"timestamp":`)
	if err := writeJSON(&buf, d.Timestamp.UTC().Format(time.RFC3339)); err != nil {
		return nil, err
	}
	buf.WriteString(`,"base_url":`)
	if err := writeJSON(&buf, d.BaseURL); err != nil {
		return nil, err
	}

	switch d.Shape {
	case ShapeTests:
		buf.WriteString(`,"tests":`)
		records := d.Records()
		if records == nil {
			records = []probe.Result{}
		}
		if err := writeJSON(&buf, records); err != nil {
			return nil, err
		}
	default:
		buf.WriteString(`,"phases":{`)
		for i, p := range d.Phases {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(&buf, p.Key); err != nil {
				return nil, err
			}
			buf.WriteByte(':')
			records := p.Records
			if records == nil {
				records = []probe.Result{}
			}
			if err := writeJSON(&buf, records); err != nil {
				return nil, err
			}
		}
		buf.WriteByte('}')
	}

	buf.WriteString(`,"summary":`)
	if err := writeJSON(&buf, d.Summary); err != nil {
		return nil, err
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	buf.Write(raw)
	return nil
}
