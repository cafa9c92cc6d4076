package supervisor

import (
	"context"
	"io"
	"strconv"
	"time"
)

// ComposeRuntime drives units as docker compose services.
type ComposeRuntime struct {
	command []string
	file    string
	project string
	timeout time.Duration
	run     runFunc
}

// NewCompose returns a runtime invoking command (e.g. ["docker", "compose"])
// against file. project may be empty.
func NewCompose(command []string, file, project string, timeout time.Duration) *ComposeRuntime {
	if len(command) == 0 {
		command = []string{"docker", "compose"}
	}
	return &ComposeRuntime{
		command: command,
		file:    file,
		project: project,
		timeout: timeout,
		run:     runCommand,
	}
}

func (c *ComposeRuntime) Start(ctx context.Context, unit string) error {
	return c.exec(ctx, io.Discard, "up", "-d", unit)
}

func (c *ComposeRuntime) Restart(ctx context.Context, unit string) error {
	return c.exec(ctx, io.Discard, "restart", unit)
}

func (c *ComposeRuntime) Logs(ctx context.Context, unit string, lines int, w io.Writer) error {
	return c.exec(ctx, w, "logs", "--tail", strconv.Itoa(lines), "--no-color", unit)
}

func (c *ComposeRuntime) exec(ctx context.Context, w io.Writer, args ...string) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	return c.run(ctx, w, c.command[0], c.args(args...)...)
}

func (c *ComposeRuntime) args(sub ...string) []string {
	out := append([]string(nil), c.command[1:]...)
	if c.file != "" {
		out = append(out, "-f", c.file)
	}
	if c.project != "" {
		out = append(out, "-p", c.project)
	}
	return append(out, sub...)
}
