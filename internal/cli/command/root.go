package command

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/metalgate/internal/cli/output"
	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/infra/buildinfo"
)

const runtimeKey = "runtime"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:                 "metalgate-cli",
		Usage:                "Manage metalgate accounts, API keys and price dashboards",
		Version:              buildinfo.String(),
		Flags:                globalFlags(),
		EnableBashCompletion: true,
		Metadata:             map[string]any{},
		Commands: []*cli.Command{
			RegisterCommand(),
			LoginCommand(),
			LogoutCommand(),
			WhoamiCommand(),
			APIKeyCommand(),
			StatsCommand(),
			PricesCommand(),
			DashboardCommand(),
			ConfigCommand(),
			AdminCommand(),
			ShellCommand(),
			VersionCommand(),
		},
		Before: func(c *cli.Context) error {
			rt, err := NewRuntime(ParseGlobalFlags(c), c.App.Writer, c.App.ErrWriter)
			if err != nil {
				return err
			}
			c.App.Metadata[runtimeKey] = rt
			return nil
		},
		After: func(c *cli.Context) error {
			if rt, ok := c.App.Metadata[runtimeKey].(*Runtime); ok {
				return rt.Close()
			}
			return nil
		},
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

// globalFlags returns the flags available to all commands.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "API base URL (e.g. http://localhost:8000)",
			EnvVars: []string{"METALGATE_SERVER"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the CLI config file",
			EnvVars: []string{"METALGATE_CONFIG"},
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Per-request timeout",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Log requests and session changes to stderr",
		},
	}
}

// GlobalFlags holds the parsed global flags. Empty values defer to the
// config file.
type GlobalFlags struct {
	Server     string
	Output     string
	ConfigPath string
	Timeout    string
	Verbose    bool
}

// ParseGlobalFlags extracts global flags from c.
func ParseGlobalFlags(c *cli.Context) GlobalFlags {
	f := GlobalFlags{
		Server:     c.String("server"),
		Output:     c.String("output"),
		ConfigPath: c.String("config"),
		Verbose:    c.Bool("verbose"),
	}
	if c.IsSet("timeout") {
		f.Timeout = c.Duration("timeout").String()
	}
	return f
}

// overrides turns set flags into config overrides.
func (f GlobalFlags) overrides() map[string]any {
	o := map[string]any{}
	if f.Server != "" {
		o["server"] = f.Server
	}
	if f.Output != "" {
		o["output"] = f.Output
	}
	if f.Timeout != "" {
		o["timeout"] = f.Timeout
	}
	return o
}

// GetRuntime returns the runtime prepared in Before.
func GetRuntime(c *cli.Context) (*Runtime, error) {
	rt, ok := c.App.Metadata[runtimeKey].(*Runtime)
	if !ok {
		return nil, errors.New("cli runtime not initialized")
	}
	return rt, nil
}

// VersionCommand prints build information.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			rt, err := GetRuntime(c)
			if err != nil {
				return err
			}
			info := buildinfo.Get()
			if rt.Format == output.FormatTable {
				t := output.NewTable("VERSION", "COMMIT", "BUILT", "GO", "PLATFORM")
				t.AddRow(info.Version, info.Commit, info.BuildTime, info.GoVersion, info.Platform)
				return rt.Print(t)
			}
			return rt.Print(info)
		},
	}
}

// FormatError renders err for humans: domain errors without their code,
// with a hint when the user has to log in.
func FormatError(err error) string {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		return err.Error()
	}
	msg := de.Message
	if de.Details != "" && de.Details != de.Message {
		msg += ": " + de.Details
	}
	switch {
	case errors.Is(err, domain.ErrSessionExpired):
		msg += "\nhint: run `metalgate-cli login` to sign in again"
	case errors.Is(err, domain.ErrNotAuthenticated):
		msg += "\nhint: run `metalgate-cli login` first"
	case errors.Is(err, domain.ErrNetwork):
		msg += "\nhint: check --server and retry"
	}
	return msg
}

// Run executes the application and returns the process exit code.
func Run(app *cli.App, args []string, stderr io.Writer) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	if err := app.Run(args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) && exitErr.Error() == "" {
			return exitErr.ExitCode()
		}
		fmt.Fprintf(stderr, "error: %s\n", FormatError(err))
		return 1
	}
	return 0
}
