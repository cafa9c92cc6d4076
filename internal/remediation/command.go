package remediation

import (
	"context"
	"fmt"
	"os"

	"pagi-framework/fleetcheck/internal/registry"
)

// CommandKind is the operator-facing remediation verb.
type CommandKind string

const (
	CommandAll            CommandKind = "all"
	CommandInfrastructure CommandKind = "infrastructure"
	CommandCore           CommandKind = "core"
	CommandPlugins        CommandKind = "plugins"
	CommandEnv            CommandKind = "env"
	CommandLogs           CommandKind = "logs"
	CommandRestart        CommandKind = "restart"
)

// Command is a parsed remediation invocation. Unit is set for logs and
// restart; Lines only for logs.
type Command struct {
	Kind  CommandKind
	Unit  string
	Lines int
}

// ParseCommand validates args. lines is the --lines value for logs.
func ParseCommand(args []string, lines int) (Command, error) {
	if len(args) == 0 {
		return Command{}, fmt.Errorf("missing action: want all|infrastructure|core|plugins|env|logs <unit>|restart <unit>")
	}

	kind := CommandKind(args[0])
	switch kind {
	case CommandAll, CommandInfrastructure, CommandCore, CommandPlugins, CommandEnv:
		if len(args) != 1 {
			return Command{}, fmt.Errorf("%s takes no arguments", kind)
		}
		return Command{Kind: kind}, nil
	case CommandLogs, CommandRestart:
		if len(args) != 2 || args[1] == "" {
			return Command{}, fmt.Errorf("%s requires exactly one unit name", kind)
		}
		cmd := Command{Kind: kind, Unit: args[1]}
		if kind == CommandLogs {
			cmd.Lines = lines
		}
		return cmd, nil
	default:
		return Command{}, fmt.Errorf("unknown action %q", args[0])
	}
}

// Execute dispatches cmd against c.
func (c *Controller) Execute(ctx context.Context, cmd Command) error {
	var err error
	switch cmd.Kind {
	case CommandAll:
		_, err = c.RemediateAll(ctx)
	case CommandInfrastructure:
		_, err = c.RemediateGroup(ctx, registry.KindInfrastructure)
	case CommandCore:
		_, err = c.RemediateGroup(ctx, registry.KindCore)
	case CommandPlugins:
		_, err = c.RemediateGroup(ctx, registry.KindPlugin)
	case CommandEnv:
		CheckEnv(c.out, c.console, os.LookupEnv)
	case CommandLogs:
		err = c.ViewLogs(ctx, cmd.Unit, cmd.Lines)
	case CommandRestart:
		err = c.RestartUnit(ctx, cmd.Unit)
	default:
		err = fmt.Errorf("unknown action %q", cmd.Kind)
	}
	return err
}
