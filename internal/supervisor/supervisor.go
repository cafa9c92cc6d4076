// Package supervisor issues start, restart and log commands to the process
// or container manager that runs the fleet.
package supervisor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"pagi-framework/fleetcheck/internal/config"
)

// ErrUnsupported is returned by New for an unknown supervisor kind.
var ErrUnsupported = errors.New("unsupported supervisor")

// Runtime is the external supervisor. Every call issues exactly one command;
// retries are the caller's decision.
type Runtime interface {
	Start(ctx context.Context, unit string) error
	Restart(ctx context.Context, unit string) error
	Logs(ctx context.Context, unit string, lines int, w io.Writer) error
}

// runFunc runs name with args, streaming stdout to w. Stderr is folded into
// the returned error.
type runFunc func(ctx context.Context, w io.Writer, name string, args ...string) error

func runCommand(ctx context.Context, w io.Writer, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = w
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
		}
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
	}
	return nil
}

// New returns the runtime selected by cfg.Supervisor.
func New(cfg config.RemediationConfig) (Runtime, error) {
	switch cfg.Supervisor {
	case "compose", "":
		return NewCompose(cfg.ComposeCommand, cfg.ComposeFile, cfg.ComposeProject, cfg.CommandTimeout), nil
	case "systemd":
		return NewSystemd(cfg.CommandTimeout), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, cfg.Supervisor)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
