package command

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/metalgate/internal/cli/output"
	"github.com/yndnr/metalgate/internal/cli/service"
	"github.com/yndnr/metalgate/internal/core/domain"
)

// APIKeyCommand returns the apikey subcommand group.
func APIKeyCommand() *cli.Command {
	return &cli.Command{
		Name:    "apikey",
		Aliases: []string{"key"},
		Usage:   "Manage API keys",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List API keys",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "cached",
						Usage: "Show the locally cached list without contacting the server",
					},
				},
				Action: apikeyList,
			},
			{
				Name:  "create",
				Usage: "Create an API key",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "key",
						Usage: fmt.Sprintf("Use this key instead of a generated one (at least %d characters)", domain.MinAPIKeyLength),
					},
				},
				Action: apikeyCreate,
			},
			{
				Name:      "toggle",
				Usage:     "Activate or deactivate an API key",
				ArgsUsage: "KEY",
				Action:    apikeyToggle,
			},
			{
				Name:      "revoke",
				Aliases:   []string{"delete"},
				Usage:     "Delete an API key permanently",
				ArgsUsage: "KEY",
				Action:    apikeyRevoke,
			},
		},
	}
}

func apikeyList(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}
	if _, err := rt.Authenticate(c.Context); err != nil {
		return err
	}

	var keys []*domain.APIKey
	if c.Bool("cached") {
		keys = rt.Keys.Cached(c.Context)
	} else if keys, err = rt.Keys.List(c.Context); err != nil {
		return err
	}

	if len(keys) == 0 && rt.Format == output.FormatTable {
		rt.Println("No API keys. Create one with `metalgate-cli apikey create`.")
		return nil
	}
	return rt.Print(output.NewKeyList(keys))
}

func apikeyCreate(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}
	if _, err := rt.Authenticate(c.Context); err != nil {
		return err
	}

	key, err := rt.Keys.Create(c.Context, service.CreateKeyRequest{Key: c.String("key")})
	if err != nil {
		return err
	}
	return rt.Print(output.NewKeyView(key))
}

func apikeyToggle(c *cli.Context) error {
	key, err := keyArg(c)
	if err != nil {
		return err
	}
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}
	if _, err := rt.Authenticate(c.Context); err != nil {
		return err
	}

	// Refresh the local copy so the new state can be reported.
	if _, err := rt.Keys.List(c.Context); err != nil {
		return err
	}
	if err := rt.Keys.Toggle(c.Context, key); err != nil {
		return err
	}

	for _, k := range rt.Keys.Cached(c.Context) {
		if k.Key == key {
			if rt.Format != output.FormatTable {
				return rt.Print(output.NewKeyView(k))
			}
			state := "inactive"
			if k.IsActive {
				state = "active"
			}
			rt.Println("API key %s is now %s", key, state)
			return nil
		}
	}
	rt.Println("API key %s toggled", key)
	return nil
}

func apikeyRevoke(c *cli.Context) error {
	key, err := keyArg(c)
	if err != nil {
		return err
	}
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}
	if _, err := rt.Authenticate(c.Context); err != nil {
		return err
	}

	if err := rt.Keys.Revoke(c.Context, key); err != nil {
		return err
	}
	rt.Println("API key %s deleted", key)
	return nil
}

func keyArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", errors.New("exactly one KEY argument is required")
	}
	return c.Args().First(), nil
}
