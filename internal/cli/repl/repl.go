package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultPrompt is printed before every line.
const DefaultPrompt = "metalgate> "

// Executor runs one parsed command line.
type Executor func(ctx context.Context, args []string) error

// REPL represents the Read-Eval-Print Loop.
type REPL struct {
	input     *bufio.Reader
	output    io.Writer
	prompt    string
	exec      Executor
	completer *Completer
	history   *History
}

// Option configures a REPL.
type Option func(*REPL)

// WithIO sets the input and output streams.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(r *REPL) {
		r.input = bufio.NewReader(in)
		r.output = out
	}
}

// WithPrompt overrides DefaultPrompt.
func WithPrompt(prompt string) Option {
	return func(r *REPL) { r.prompt = prompt }
}

// WithHistory sets the history store.
func WithHistory(h *History) Option {
	return func(r *REPL) { r.history = h }
}

// New creates a REPL that dispatches lines to exec. commands lists the
// command paths offered by help and suggestions.
func New(exec Executor, commands []string, opts ...Option) *REPL {
	r := &REPL{
		input:     bufio.NewReader(strings.NewReader("")),
		output:    io.Discard,
		prompt:    DefaultPrompt,
		exec:      exec,
		completer: NewCompleter(commands),
		history:   NewHistory(""),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Input returns the buffered shell input. Commands that prompt must read
// from it so buffered lines are not lost.
func (r *REPL) Input() *bufio.Reader {
	return r.input
}

// Run reads lines until EOF, exit or ctx is done. Command errors are
// printed and do not stop the loop.
func (r *REPL) Run(ctx context.Context) error {
	if err := r.history.Load(); err != nil {
		fmt.Fprintf(r.output, "warning: history not loaded: %v\n", err)
	}
	defer func() {
		if err := r.history.Save(); err != nil {
			fmt.Fprintf(r.output, "warning: history not saved: %v\n", err)
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fmt.Fprint(r.output, r.prompt)

		line, err := r.input.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := errors.Is(err, io.EOF)

		line = strings.TrimSpace(line)
		if line == "" {
			if eof {
				fmt.Fprintln(r.output)
				return nil
			}
			continue
		}
		r.history.Add(line)

		if done := r.handle(ctx, line); done {
			return nil
		}
		if eof {
			fmt.Fprintln(r.output)
			return nil
		}
	}
}

// handle runs one line and reports whether the shell should exit.
func (r *REPL) handle(ctx context.Context, line string) bool {
	args, err := Split(line)
	if err != nil {
		fmt.Fprintf(r.output, "Error: %v\n", err)
		return false
	}

	switch args[0] {
	case "exit", "quit":
		return true
	case "help":
		r.help(strings.Join(args[1:], " "))
		return false
	case "history":
		for i, entry := range r.history.Entries() {
			fmt.Fprintf(r.output, "%4d  %s\n", i+1, entry)
		}
		return false
	}

	if !r.completer.Known(args[0]) {
		fmt.Fprintf(r.output, "Error: unknown command %q\n", args[0])
		if args[0] != "" {
			if s := r.completer.Complete(args[0][:1]); len(s) > 0 {
				fmt.Fprintf(r.output, "Commands starting with %q: %s\n", args[0][:1], strings.Join(s, ", "))
			}
		}
		return false
	}
	if err := r.exec(ctx, args); err != nil {
		fmt.Fprintf(r.output, "Error: %v\n", err)
	}
	return false
}

func (r *REPL) help(prefix string) {
	for _, cmd := range r.completer.Complete(prefix) {
		fmt.Fprintln(r.output, "  "+cmd)
	}
}

// Split breaks a line into arguments. Single and double quotes group
// words; a backslash escapes the next character outside single quotes.
func Split(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, c := range line {
		switch {
		case escaped:
			cur.WriteRune(c)
			escaped = false
		case c == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				cur.WriteRune(c)
			}
		case c == '\'' || c == '"':
			quote = c
			inWord = true
		case c == ' ' || c == '\t':
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(c)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, errors.New("trailing backslash")
	}
	if inWord {
		args = append(args, cur.String())
	}
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}
	return args, nil
}
