package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagi-framework/fleetcheck/internal/config"
	"pagi-framework/fleetcheck/internal/orchestrator"
	"pagi-framework/fleetcheck/internal/report"
)

type stubValidator struct {
	result *orchestrator.RunResult
	err    error
	last   *orchestrator.Snapshot
}

func (s *stubValidator) Run(context.Context) (*orchestrator.RunResult, error) {
	return s.result, s.err
}

func (s *stubValidator) Last() *orchestrator.Snapshot { return s.last }

func TestValidate_ExitLaw(t *testing.T) {
	t.Parallel()

	completed := func(sum report.Summary) *orchestrator.RunResult {
		return &orchestrator.RunResult{State: orchestrator.RunCompleted, Summary: sum}
	}

	tests := []struct {
		name    string
		stub    *stubValidator
		wantErr error
		failed  bool
	}{
		{
			name: "all passed",
			stub: &stubValidator{result: completed(report.Summary{Total: 3, Passed: 3})},
		},
		{
			name: "skips alone succeed",
			stub: &stubValidator{result: completed(report.Summary{Total: 5, Passed: 2, Skipped: 3})},
		},
		{
			name:   "one failure",
			stub:   &stubValidator{result: completed(report.Summary{Total: 4, Passed: 2, Failed: 1, Skipped: 1})},
			failed: true,
		},
		{
			name: "fail-fast abort",
			stub: &stubValidator{
				result: &orchestrator.RunResult{State: orchestrator.RunAbortedEarly, Summary: report.Summary{Total: 1, Failed: 1}},
				err:    orchestrator.ErrSetupFailure,
			},
			wantErr: orchestrator.ErrSetupFailure,
			failed:  true,
		},
		{
			name:    "run already active",
			stub:    &stubValidator{err: orchestrator.ErrRunInProgress},
			wantErr: orchestrator.ErrRunInProgress,
			failed:  true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := validate(context.Background(), tc.stub, report.Discard(), config.RunConfig{BaseURL: "http://fleet"})
			if !tc.failed {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestValidate_RendersSummary(t *testing.T) {
	t.Parallel()

	rec := report.NewRecorder("", report.ShapePhases, "http://fleet", nil)
	rec.BeginPhase("infrastructure", "Infrastructure readiness")

	stub := &stubValidator{
		result: &orchestrator.RunResult{State: orchestrator.RunCompleted},
		last:   &orchestrator.Snapshot{Document: rec.Document()},
	}

	var out bytes.Buffer
	err := validate(context.Background(), stub, report.NewConsole(&out, nil), config.RunConfig{
		BaseURL:    "http://fleet",
		ReportFile: "validation-report.json",
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Validation summary")
	assert.Contains(t, out.String(), "Report written to validation-report.json")
}
