package supervisor

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
)

// unitManager is the subset of *dbus.Conn used here.
type unitManager interface {
	StartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	RestartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error)
	Close()
}

// SystemdRuntime drives units as systemd services over D-Bus. Logs are read
// with journalctl.
type SystemdRuntime struct {
	timeout time.Duration
	connect func(ctx context.Context) (unitManager, error)
	run     runFunc
}

func NewSystemd(timeout time.Duration) *SystemdRuntime {
	return &SystemdRuntime{
		timeout: timeout,
		connect: func(ctx context.Context) (unitManager, error) {
			return dbus.NewWithContext(ctx)
		},
		run: runCommand,
	}
}

func (s *SystemdRuntime) Start(ctx context.Context, unit string) error {
	return s.job(ctx, unit, "start", unitManager.StartUnitContext)
}

func (s *SystemdRuntime) Restart(ctx context.Context, unit string) error {
	return s.job(ctx, unit, "restart", unitManager.RestartUnitContext)
}

func (s *SystemdRuntime) Logs(ctx context.Context, unit string, lines int, w io.Writer) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.run(ctx, w, "journalctl", "-u", serviceName(unit), "-n", strconv.Itoa(lines), "--no-pager")
}

type jobFunc func(m unitManager, ctx context.Context, name, mode string, ch chan<- string) (int, error)

func (s *SystemdRuntime) job(ctx context.Context, unit, verb string, fn jobFunc) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.connect(ctx)
	if err != nil {
		return fmt.Errorf("connecting to systemd: %w", err)
	}
	defer conn.Close()

	done := make(chan string, 1)
	if _, err := fn(conn, ctx, serviceName(unit), "replace", done); err != nil {
		return fmt.Errorf("%s %s: %w", verb, unit, err)
	}

	select {
	case result := <-done:
		if result != "done" {
			return fmt.Errorf("%s %s: job %s", verb, unit, result)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s %s: %w", verb, unit, ctx.Err())
	}
}

func serviceName(unit string) string {
	if strings.Contains(unit, ".") {
		return unit
	}
	return unit + ".service"
}
