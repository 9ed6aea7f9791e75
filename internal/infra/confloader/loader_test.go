package confloader

import (
	"os"
	"path/filepath"
	"testing"
)

type testConfig struct {
	Server        string `koanf:"server"`
	DefaultOutput string `koanf:"default_output"`
	Log           struct {
		Level string `koanf:"level"`
	} `koanf:"log"`
	HTTP struct {
		Timeout string `koanf:"timeout"`
	} `koanf:"http"`
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoader_Priority(t *testing.T) {
	path := writeFile(t, `
server: http://from-file:8000
default_output: yaml
log:
  level: info
`)
	t.Setenv("METALGATE_LOG_LEVEL", "debug")
	t.Setenv("METALGATE_DEFAULT_OUTPUT", "json")

	l := NewLoader(
		WithConfigFile(path),
		WithDefaults(map[string]any{
			"server":         "http://localhost:8000",
			"default_output": "table",
			"log.level":      "warn",
			"http.timeout":   "30s",
		}),
	)

	var cfg testConfig
	if err := l.Load(&cfg, map[string]any{"server": "http://from-flag:9000"}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name, got, want string
	}{
		{"default kept", cfg.HTTP.Timeout, "30s"},
		{"flag beats file", cfg.Server, "http://from-flag:9000"},
		{"env beats file (nested)", cfg.Log.Level, "debug"},
		{"env matches underscored key", cfg.DefaultOutput, "json"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoader_OptionalFileMissing(t *testing.T) {
	l := NewLoader(
		WithOptionalConfigFile(filepath.Join(t.TempDir(), "absent.yaml")),
		WithDefaults(map[string]any{"server": "http://localhost:8000"}),
	)
	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server != "http://localhost:8000" {
		t.Errorf("Server = %q", cfg.Server)
	}
}

func TestLoader_RequiredFileMissing(t *testing.T) {
	l := NewLoader(WithConfigFile(filepath.Join(t.TempDir(), "absent.yaml")))
	var cfg testConfig
	if err := l.Load(&cfg); err == nil {
		t.Error("Load() should fail for a missing required file")
	}
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := writeFile(t, "server: [unterminated")
	l := NewLoader(WithConfigFile(path))
	var cfg testConfig
	if err := l.Load(&cfg); err == nil {
		t.Error("Load() should fail for invalid YAML")
	}
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_LOG_LEVEL", "error")

	l := NewLoader(WithEnvPrefix("MYAPP_"))
	if err := l.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if got := l.String("log.level"); got != "error" {
		t.Errorf("log.level = %q", got)
	}
}

func TestLoader_LoadMapDottedKeys(t *testing.T) {
	l := NewLoader()
	if err := l.LoadMap(map[string]any{"log.level": "debug"}); err != nil {
		t.Fatalf("LoadMap() error = %v", err)
	}
	var cfg testConfig
	if err := l.Unmarshal(&cfg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if !l.Exists("log.level") || l.Exists("log.format") {
		t.Error("Exists() mismatch")
	}
}
