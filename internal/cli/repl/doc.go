// Package repl provides the interactive shell of metalgate-cli.
//
//   - repl.go: read loop, line splitting and dispatch
//   - completer.go: command prefix matching for help and suggestions
//   - history.go: persisted command history
//
// Each line is split into arguments and handed to an Executor, which runs
// it through the regular command tree. The session stays in memory
// between lines.
package repl
