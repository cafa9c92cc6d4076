package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"pagi-framework/fleetcheck/internal/report"
)

// ErrRunInProgress is returned when Run is called while a validation run is
// already active.
var ErrRunInProgress = errors.New("validation run already in progress")

// Snapshot is the outcome of the most recent completed run.
type Snapshot struct {
	Result     *RunResult
	Document   report.Document
	FinishedAt time.Time
}

// Service guards an Orchestrator so that runs never overlap and keeps the
// last report for the status API.
type Service struct {
	orch        *Orchestrator
	newRecorder func() *report.Recorder

	runInProgress atomic.Bool
	last          *Snapshot
	lastMu        sync.RWMutex
}

// NewService wraps o. newRecorder is called once per run.
func NewService(o *Orchestrator, newRecorder func() *report.Recorder) *Service {
	return &Service{
		orch:        o,
		newRecorder: newRecorder,
	}
}

// Run executes one validation run. The report is always written before Run
// returns, including when a fail-fast phase aborts. Returns ErrRunInProgress
// if another run is active.
func (s *Service) Run(ctx context.Context) (*RunResult, error) {
	if !s.runInProgress.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.runInProgress.Store(false)

	rec := s.newRecorder()

	result, runErr := s.orch.Run(ctx, rec)

	if err := rec.Close(); err != nil {
		slog.ErrorContext(ctx, "writing final report failed", "path", rec.Path(), "err", err)
		if runErr == nil {
			runErr = fmt.Errorf("writing report: %w", err)
		}
	}

	s.lastMu.Lock()
	s.last = &Snapshot{
		Result:     result,
		Document:   rec.Document(),
		FinishedAt: time.Now().UTC(),
	}
	s.lastMu.Unlock()

	return result, runErr
}

// IsRunInProgress returns true while a run is active.
func (s *Service) IsRunInProgress() bool {
	return s.runInProgress.Load()
}

// IsReady returns true if the last run finished with zero failures.
func (s *Service) IsReady() bool {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.last != nil && s.last.Result != nil && !s.last.Result.Failed()
}

// Last returns the most recent snapshot, or nil before the first run.
func (s *Service) Last() *Snapshot {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.last
}
