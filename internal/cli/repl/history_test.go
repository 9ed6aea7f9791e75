package repl

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestHistory_Add(t *testing.T) {
	h := NewHistory("")
	h.Add("command1")
	h.Add("command2")
	h.Add("command2")
	h.Add("command3")

	want := []string{"command1", "command2", "command3"}
	if got := h.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("Entries() = %q, want %q", got, want)
	}
}

func TestHistory_Add_MaxSize(t *testing.T) {
	h := &History{maxSize: 3}
	for _, cmd := range []string{"a", "b", "c", "d", "e"} {
		h.Add(cmd)
	}
	want := []string{"c", "d", "e"}
	if got := h.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("Entries() = %q, want %q", got, want)
	}
}

func TestHistory_Get(t *testing.T) {
	h := NewHistory("")
	h.Add("first")
	h.Add("second")

	tests := []struct {
		index int
		want  string
	}{
		{0, "second"},
		{1, "first"},
		{2, ""},
		{-1, ""},
	}
	for _, tt := range tests {
		if got := h.Get(tt.index); got != tt.want {
			t.Errorf("Get(%d) = %q, want %q", tt.index, got, tt.want)
		}
	}
}

func TestHistory_SaveLoad(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nested", "history")

	h := NewHistory(file)
	h.Add("login -u alice")
	h.Add("prices")
	if err := h.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(file)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("history mode = %o, want 600", perm)
	}

	loaded := NewHistory(file)
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := loaded.Entries(); !reflect.DeepEqual(got, h.Entries()) {
		t.Errorf("loaded = %q, want %q", got, h.Entries())
	}
}

func TestHistory_LoadMissingFile(t *testing.T) {
	h := NewHistory(filepath.Join(t.TempDir(), "missing"))
	if err := h.Load(); err != nil {
		t.Errorf("Load() error = %v", err)
	}
	if len(h.Entries()) != 0 {
		t.Errorf("Entries() = %q", h.Entries())
	}
}

func TestHistory_InMemory(t *testing.T) {
	h := NewHistory("")
	h.Add("x")
	if err := h.Save(); err != nil {
		t.Errorf("Save() error = %v", err)
	}
	if err := h.Load(); err != nil {
		t.Errorf("Load() error = %v", err)
	}
}
