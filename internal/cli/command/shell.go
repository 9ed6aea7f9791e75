package command

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/metalgate/internal/cli/repl"
)

// ShellCommand starts an interactive shell that runs commands against one
// runtime, so a login stays in effect until the shell exits.
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Start an interactive shell",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-history",
				Usage: "Do not read or write the history file",
			},
		},
		Action: func(c *cli.Context) error {
			rt, err := GetRuntime(c)
			if err != nil {
				return err
			}

			hist := repl.NewHistory(filepath.Join(rt.Config.StateDir, "history"))
			if c.Bool("no-history") {
				hist = repl.NewHistory("")
			}

			var sh *repl.REPL
			exec := func(ctx context.Context, args []string) error {
				sub := shellApp(rt)
				sub.Reader = sh.Input()
				if err := sub.RunContext(ctx, append([]string{sub.Name}, args...)); err != nil {
					return errors.New(FormatError(err))
				}
				return nil
			}
			sh = repl.New(exec, commandPaths(shellApp(rt).Commands, ""),
				repl.WithIO(c.App.Reader, rt.Out),
				repl.WithHistory(hist))

			rt.Println("metalgate shell. Type help for commands, exit to leave.")
			return sh.Run(c.Context)
		},
	}
}

// shellApp is App without global flags or the shell itself, bound to rt.
func shellApp(rt *Runtime) *cli.App {
	app := App()
	app.Flags = nil
	app.Writer = rt.Out
	app.ErrWriter = rt.Err
	app.HideHelpCommand = true

	cmds := app.Commands[:0]
	for _, cmd := range app.Commands {
		if cmd.Name != "shell" {
			cmds = append(cmds, cmd)
		}
	}
	app.Commands = cmds

	app.Before = func(c *cli.Context) error {
		c.App.Metadata[runtimeKey] = rt
		return nil
	}
	// The outer invocation owns rt.
	app.After = nil
	return app
}

// commandPaths lists "cmd" and "cmd sub" for every command.
func commandPaths(cmds []*cli.Command, parent string) []string {
	var paths []string
	for _, cmd := range cmds {
		if cmd.Hidden {
			continue
		}
		name := cmd.Name
		if parent != "" {
			name = parent + " " + name
		}
		paths = append(paths, name)
		paths = append(paths, commandPaths(cmd.Subcommands, name)...)
	}
	return paths
}
