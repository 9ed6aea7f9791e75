package repl

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

type recorder struct {
	calls [][]string
	err   error
}

func (rec *recorder) exec(_ context.Context, args []string) error {
	rec.calls = append(rec.calls, args)
	return rec.err
}

func newTestREPL(input string, rec *recorder, opts ...Option) (*REPL, *bytes.Buffer) {
	out := &bytes.Buffer{}
	opts = append([]Option{WithIO(strings.NewReader(input), out)}, opts...)
	return New(rec.exec, []string{"login", "apikey", "apikey list", "prices"}, opts...), out
}

func TestREPL_Run_Exit(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"exit command", "exit\n"},
		{"quit command", "quit\n"},
		{"EOF", ""},
		{"empty lines then exit", "\n\n\nexit\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			r, _ := newTestREPL(tt.input, rec)
			if err := r.Run(context.Background()); err != nil {
				t.Errorf("Run() error = %v", err)
			}
			if len(rec.calls) != 0 {
				t.Errorf("exec called %d times", len(rec.calls))
			}
		})
	}
}

func TestREPL_Run_Dispatch(t *testing.T) {
	rec := &recorder{}
	r, out := newTestREPL("apikey list\nprices --commodities 'gold,silver'\nexit\nlogin\n", rec)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := [][]string{
		{"apikey", "list"},
		{"prices", "--commodities", "gold,silver"},
	}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Errorf("calls = %q, want %q", rec.calls, want)
	}
	if got := strings.Count(out.String(), DefaultPrompt); got != 3 {
		t.Errorf("prompt printed %d times, want 3", got)
	}
}

func TestREPL_Run_LastLineWithoutNewline(t *testing.T) {
	rec := &recorder{}
	r, _ := newTestREPL("prices", rec)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(rec.calls) != 1 {
		t.Errorf("calls = %q, want one", rec.calls)
	}
}

func TestREPL_Run_ErrorsDoNotStop(t *testing.T) {
	rec := &recorder{err: errors.New("boom")}
	r, out := newTestREPL("prices\nprices\n", rec)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(rec.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(rec.calls))
	}
	if got := strings.Count(out.String(), "Error: boom"); got != 2 {
		t.Errorf("error printed %d times, want 2", got)
	}
}

func TestREPL_Run_UnknownCommand(t *testing.T) {
	rec := &recorder{}
	r, out := newTestREPL("apples\n", rec)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(rec.calls) != 0 {
		t.Errorf("exec called for unknown command")
	}
	if !strings.Contains(out.String(), `unknown command "apples"`) || !strings.Contains(out.String(), "apikey list") {
		t.Errorf("output = %q", out.String())
	}
}

func TestREPL_Run_Builtins(t *testing.T) {
	rec := &recorder{}
	r, out := newTestREPL("help api\nprices\nhistory\n", rec)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := out.String()
	for _, want := range []string{"  apikey\n", "  apikey list\n", "   1  help api\n", "   2  prices\n", "   3  history\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "  login\n") {
		t.Errorf("help api listed login:\n%s", got)
	}
}

func TestREPL_Run_CancelledContext(t *testing.T) {
	rec := &recorder{}
	r, _ := newTestREPL("prices\n", rec)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(rec.calls) != 0 {
		t.Errorf("exec called after cancel")
	}
}

func TestREPL_Run_PersistsHistory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "state", "history")

	rec := &recorder{}
	r, _ := newTestREPL("prices\n", rec, WithHistory(NewHistory(file)))
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("history file: %v", err)
	}
	if string(data) != "prices\n" {
		t.Errorf("history file = %q", data)
	}

	h := NewHistory(file)
	if err := h.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if h.Get(0) != "prices" {
		t.Errorf("Get(0) = %q", h.Get(0))
	}
}

func TestREPL_Input(t *testing.T) {
	var (
		r      *REPL
		answer string
	)
	exec := func(context.Context, []string) error {
		line, err := r.Input().ReadString('\n')
		answer = strings.TrimSpace(line)
		return err
	}
	r = New(exec, []string{"login"}, WithIO(strings.NewReader("login\nsecret\nexit\n"), &bytes.Buffer{}))
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if answer != "secret" {
		t.Errorf("answer = %q, want secret", answer)
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		line    string
		want    []string
		wantErr bool
	}{
		{"apikey list", []string{"apikey", "list"}, false},
		{"  prices\t-c  gold ", []string{"prices", "-c", "gold"}, false},
		{`login -u "jane doe"`, []string{"login", "-u", "jane doe"}, false},
		{`apikey create -k 'a b\c'`, []string{"apikey", "create", "-k", `a b\c`}, false},
		{`say a\ b`, []string{"say", "a b"}, false},
		{`say ""`, []string{"say", ""}, false},
		{`say "open`, nil, true},
		{`say \`, nil, true},
		{"   ", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := Split(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Split() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Split() = %q, want %q", got, tt.want)
			}
		})
	}
}
