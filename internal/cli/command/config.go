package command

import (
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/metalgate/internal/cli/config"
	"github.com/yndnr/metalgate/internal/cli/connection"
	"github.com/yndnr/metalgate/internal/cli/output"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show or change the CLI configuration",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective configuration",
				Action: configShow,
			},
			{
				Name:      "set-server",
				Usage:     "Save the API base URL",
				ArgsUsage: "URL",
				Action:    configSetServer,
			},
			{
				Name:  "path",
				Usage: "Print the config file location",
				Action: func(c *cli.Context) error {
					rt, err := GetRuntime(c)
					if err != nil {
						return err
					}
					return rt.Print(configPath(rt))
				},
			},
		},
	}
}

func configPath(rt *Runtime) string {
	if rt.ConfigPath != "" {
		return rt.ConfigPath
	}
	return config.DefaultConfigPath()
}

func configShow(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}
	if rt.Format != output.FormatTable {
		return rt.Print(rt.Config)
	}

	t := output.NewTable("KEY", "VALUE")
	t.AddRow("file", configPath(rt))
	t.AddRow("server", rt.Config.Server)
	t.AddRow("output", rt.Config.Output)
	t.AddRow("timeout", rt.Config.Timeout)
	t.AddRow("state_dir", rt.Config.StateDir)
	t.AddRow("token_store", rt.Config.TokenStore)
	commodities := rt.Config.Commodities
	if commodities == "" {
		commodities = "(all)"
	}
	t.AddRow("commodities", commodities)
	return rt.Print(t)
}

// configSetServer rewrites the config file with a new server. Flag values
// of the current run are not saved.
func configSetServer(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}
	if c.NArg() != 1 {
		return errors.New("exactly one URL argument is required")
	}

	path := configPath(rt)
	cfg, err := config.Load(path, nil)
	if err != nil {
		return err
	}
	cfg.Server = connection.NewHTTPClient(c.Args().First()).BaseURL()
	if err := config.Save(cfg, path); err != nil {
		return err
	}
	rt.Println("Server set to %s", cfg.Server)
	return nil
}
