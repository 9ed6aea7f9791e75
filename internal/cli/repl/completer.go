package repl

import (
	"sort"
	"strings"
)

// Completer matches command lines by prefix.
type Completer struct {
	commands []string
}

// NewCompleter creates a Completer over commands plus the shell builtins.
func NewCompleter(commands []string) *Completer {
	all := append([]string{"help", "history", "exit", "quit"}, commands...)
	sort.Strings(all)
	return &Completer{commands: all}
}

// Complete returns the commands starting with prefix.
func (c *Completer) Complete(prefix string) []string {
	var suggestions []string
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd, prefix) {
			suggestions = append(suggestions, cmd)
		}
	}
	return suggestions
}

// Known reports whether name is a top-level command or builtin.
func (c *Completer) Known(name string) bool {
	for _, cmd := range c.commands {
		if first, _, _ := strings.Cut(cmd, " "); first == name {
			return true
		}
	}
	return false
}
