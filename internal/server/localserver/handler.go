package localserver

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Command runs an admin command and writes its output lines to w.
type Command func(ctx context.Context, w io.Writer, args []string) error

// Handler dispatches admin commands by name.
type Handler struct {
	mu       sync.RWMutex
	commands map[string]entry
}

type entry struct {
	usage string
	run   Command
}

// NewHandler creates a Handler with the help command.
func NewHandler() *Handler {
	h := &Handler{commands: map[string]entry{}}
	h.Register("help", "List commands", h.help)
	return h
}

// Register adds or replaces a command.
func (h *Handler) Register(name, usage string, run Command) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands[name] = entry{usage: usage, run: run}
}

// Execute runs one command line and writes the reply, ending with OK or
// ERR.
func (h *Handler) Execute(ctx context.Context, w io.Writer, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	h.mu.RLock()
	e, ok := h.commands[fields[0]]
	h.mu.RUnlock()

	var err error
	if !ok {
		err = fmt.Errorf("unknown command %q", fields[0])
	} else {
		err = e.run(ctx, w, fields[1:])
	}
	if err != nil {
		_, werr := fmt.Fprintf(w, "ERR %s\n", oneLine(err.Error()))
		return werr
	}
	_, werr := io.WriteString(w, "OK\n")
	return werr
}

func (h *Handler) help(_ context.Context, w io.Writer, _ []string) error {
	h.mu.RLock()
	names := make([]string, 0, len(h.commands))
	for name := range h.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%-10s %s\n", name, h.commands[name].usage)
	}
	h.mu.RUnlock()
	return nil
}

func oneLine(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}
