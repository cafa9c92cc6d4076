package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagi-framework/fleetcheck/internal/probe"
)

// parsedDoc mirrors the on-disk contract consumed by automation.
type parsedDoc struct {
	Timestamp string                      `json:"timestamp"`
	BaseURL   string                      `json:"base_url"`
	Tests     []map[string]any            `json:"tests"`
	Phases    map[string][]map[string]any `json:"phases"`
	Summary   Summary                     `json:"summary"`
}

func readDoc(t *testing.T, path string) parsedDoc {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc parsedDoc
	require.NoError(t, json.Unmarshal(raw, &doc), "report must be well-formed JSON: %s", raw)
	return doc
}

func TestRecorder_PhasesShape(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.json")
	rec := NewRecorder(path, ShapePhases, "http://localhost", Discard())

	rec.BeginPhase("infrastructure", "Infrastructure readiness")
	rec.Record(probe.Pass("redis ping", "PONG"))
	rec.Record(probe.Fail("kafka reach", "connection to localhost:9092 failed", "check kafka"))
	require.NoError(t, rec.EndPhase())

	rec.BeginPhase("sync", "Knowledge synchronization")
	rec.Record(probe.Skip("push artifact", "SWARM_REPO_URL not set"))
	require.NoError(t, rec.EndPhase())
	require.NoError(t, rec.Close())

	doc := readDoc(t, path)
	assert.Equal(t, "http://localhost", doc.BaseURL)
	assert.NotEmpty(t, doc.Timestamp)
	assert.Nil(t, doc.Tests)
	require.Len(t, doc.Phases, 2)
	assert.Len(t, doc.Phases["infrastructure"], 2)
	assert.Len(t, doc.Phases["sync"], 1)

	fail := doc.Phases["infrastructure"][1]
	assert.Equal(t, "fail", fail["status"])
	assert.Equal(t, "check kafka", fail["remediation"])
	assert.NotEmpty(t, fail["timestamp"])

	pass := doc.Phases["infrastructure"][0]
	_, hasHint := pass["remediation"]
	assert.False(t, hasHint, "remediation is omitted when empty")

	assert.Equal(t, Summary{Total: 3, Passed: 1, Failed: 1, Skipped: 1}, doc.Summary)
}

func TestRecorder_TestsShape(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.json")
	rec := NewRecorder(path, ShapeTests, "http://fleet", Discard())

	rec.BeginPhase("a", "A")
	rec.Record(probe.Pass("one", "HTTP 200"))
	require.NoError(t, rec.EndPhase())
	rec.BeginPhase("b", "B")
	rec.Record(probe.Pass("two", "HTTP 200"))
	require.NoError(t, rec.Close())

	doc := readDoc(t, path)
	assert.Nil(t, doc.Phases)
	require.Len(t, doc.Tests, 2)
	assert.Equal(t, "one", doc.Tests[0]["name"])
	assert.Equal(t, "two", doc.Tests[1]["name"])
	assert.Equal(t, 2, doc.Summary.Total)
}

func TestRecorder_PhaseKeyOrderPreserved(t *testing.T) {
	t.Parallel()

	rec := NewRecorder("", ShapePhases, "http://localhost", nil)
	for _, key := range []string{"zeta", "alpha", "mid"} {
		rec.BeginPhase(key, key)
		rec.Record(probe.Pass(key, "ok"))
		require.NoError(t, rec.EndPhase())
	}

	raw, err := json.Marshal(rec.Document())
	require.NoError(t, err)

	s := string(raw)
	assert.Less(t, strings.Index(s, `"zeta"`), strings.Index(s, `"alpha"`))
	assert.Less(t, strings.Index(s, `"alpha"`), strings.Index(s, `"mid"`))
	assert.True(t, strings.HasPrefix(s, `{"timestamp":`))
	assert.True(t, strings.HasSuffix(s, `"skipped":0}}`))
}

func TestRecorder_CheckpointIsWellFormedMidRun(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.json")
	rec := NewRecorder(path, ShapePhases, "http://localhost", Discard())

	rec.BeginPhase("infrastructure", "Infrastructure readiness")
	rec.Record(probe.Pass("redis ping", "PONG"))
	require.NoError(t, rec.EndPhase())

	rec.BeginPhase("bootstrap", "Entity bootstrap")
	rec.Record(probe.Pass("create twin A", "HTTP 201"))

	// Simulated crash: no EndPhase, no Close. The last checkpoint must parse.
	doc := readDoc(t, path)
	assert.Len(t, doc.Phases, 1)
	assert.Equal(t, 1, doc.Summary.Total)
}

func TestRecorder_EmptyPhaseIsEmptyArray(t *testing.T) {
	t.Parallel()

	rec := NewRecorder("", ShapePhases, "http://localhost", nil)
	rec.BeginPhase("capabilities", "Capabilities")
	require.NoError(t, rec.EndPhase())

	raw, err := json.Marshal(rec.Document())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"capabilities":[]`)
}

func TestRecorder_SummaryInvariant(t *testing.T) {
	t.Parallel()

	rec := NewRecorder("", ShapeTests, "http://localhost", nil)
	statuses := []probe.Status{probe.StatusPass, probe.StatusFail, probe.StatusSkip, probe.StatusPass, probe.StatusFail}
	for i, st := range statuses {
		rec.Record(probe.Result{Name: string(rune('a' + i)), Status: st})
	}

	s := rec.Summary()
	assert.Equal(t, s.Total, s.Passed+s.Failed+s.Skipped)
	assert.Equal(t, len(rec.Document().Records()), s.Total)
	assert.Equal(t, Summary{Total: 5, Passed: 2, Failed: 2, Skipped: 1}, s)
}

func TestRecorder_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.json")
	rec := NewRecorder(path, ShapePhases, "http://localhost", nil)
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	doc := readDoc(t, path)
	assert.Empty(t, doc.Phases)
	assert.Equal(t, 0, doc.Summary.Total)
}

func TestRecorder_UnwritablePath(t *testing.T) {
	t.Parallel()

	rec := NewRecorder(filepath.Join(t.TempDir(), "missing", "report.json"), ShapePhases, "http://localhost", nil)
	assert.Error(t, rec.Close())
}

func TestConsole_LinesAndMirror(t *testing.T) {
	t.Parallel()

	var out, mirror bytes.Buffer
	c := NewConsole(&out, &mirror)

	rec := NewRecorder("", ShapePhases, "http://localhost", c)
	rec.BeginPhase("infrastructure", "Infrastructure readiness")
	rec.Record(probe.Pass("redis ping", "PONG"))
	rec.Record(probe.Fail("kafka reach", "connection to localhost:9092 failed", "check kafka"))
	rec.Record(probe.Skip("nats connectivity", "NATS_URL not set"))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "[INFO] === Infrastructure readiness ===", lines[0])
	assert.Equal(t, "[PASS] redis ping: PONG", lines[1])
	assert.Equal(t, "[FAIL] kafka reach: connection to localhost:9092 failed", lines[2])
	assert.Equal(t, "[INFO]   remediation: check kafka", lines[3])
	assert.Equal(t, "[SKIP] nats connectivity: NATS_URL not set", lines[4])

	assert.Contains(t, mirror.String(), "[PASS] redis ping: PONG")
	assert.NotContains(t, mirror.String(), "\x1b[")
}

func TestRenderSummary(t *testing.T) {
	t.Parallel()

	rec := NewRecorder("", ShapePhases, "http://localhost", nil)
	rec.BeginPhase("infrastructure", "Infrastructure readiness")
	ping := probe.Pass("redis ping", "PONG")
	ping.LatencyMs = 3
	reach := probe.Fail("kafka reach", "refused", "")
	reach.LatencyMs = 1874
	rec.Record(ping)
	rec.Record(reach)

	doc := rec.Document()
	assert.Equal(t, int64(1874), doc.Phases[0].Slowest())

	var buf bytes.Buffer
	RenderSummary(&buf, doc)

	out := buf.String()
	assert.Contains(t, out, "Validation summary")
	assert.Contains(t, out, "Infrastructure readiness")
	assert.Contains(t, out, "1874")
}

func TestParseShape(t *testing.T) {
	t.Parallel()

	s, err := ParseShape("tests")
	require.NoError(t, err)
	assert.Equal(t, ShapeTests, s)

	_, err = ParseShape("tree")
	assert.Error(t, err)
}
