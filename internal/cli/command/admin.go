package command

import (
	"errors"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/metalgate/internal/cli/connection"
	"github.com/yndnr/metalgate/internal/cli/output"
)

// adminTimeout bounds one admin round trip.
const adminTimeout = 30 * time.Second

// AdminCommand sends commands to a local server's admin socket.
func AdminCommand() *cli.Command {
	return &cli.Command{
		Name:      "admin",
		Usage:     "Run a command on the local server's admin socket",
		ArgsUsage: "COMMAND [ARGS...]",
		Description: "Commands are handled by the server; `admin help` lists them.\n" +
			"Common ones: status, snapshot, sweep, reload, shutdown.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "socket",
				Usage: "Admin socket path (default: admin_socket from the config)",
			},
		},
		Action: adminRun,
	}
}

func adminRun(c *cli.Context) error {
	rt, err := GetRuntime(c)
	if err != nil {
		return err
	}
	if c.NArg() == 0 {
		return errors.New("usage: metalgate-cli admin COMMAND [ARGS...]")
	}

	path := c.String("socket")
	if path == "" {
		path = rt.Config.AdminSocket
	}
	if path == "" {
		return errors.New("no admin socket: pass --socket or set admin_socket")
	}

	client := connection.NewSocketClient(path, adminTimeout)
	defer client.Close()

	rt.Logger.Debug("admin command", "socket", path, "command", c.Args().First())
	lines, err := client.Execute(c.Context, strings.Join(c.Args().Slice(), " "))
	if rt.Format != output.FormatTable {
		if err != nil {
			return err
		}
		return rt.Print(adminReply(lines))
	}
	for _, line := range lines {
		rt.Println("%s", line)
	}
	return err
}

// adminReply turns "key value" lines into a map for json and yaml output.
// Lines without a value are kept under "output".
func adminReply(lines []string) map[string]any {
	out := map[string]any{}
	var rest []string
	for _, line := range lines {
		k, v, ok := strings.Cut(line, " ")
		if !ok || strings.Contains(k, ":") {
			rest = append(rest, line)
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	if len(rest) > 0 {
		out["output"] = rest
	}
	return out
}
