// Package command defines the metalgate-cli commands with urfave/cli.
//
//   - root.go: application, global flags, per-run setup and teardown
//   - runtime.go: the session, services and stores shared by commands
//   - auth.go: register, login, logout, whoami
//   - apikey.go: apikey list/create/toggle/revoke
//   - prices.go: stats, prices, dashboard
//   - config.go: config show/set-server/path
//   - admin.go: commands for the local server admin socket
//   - shell.go: interactive shell over the same commands
//
// Every command parses its flags, calls a service and renders the result
// with the formatter selected by --output.
package command
