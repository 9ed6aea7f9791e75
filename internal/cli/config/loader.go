package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/yndnr/metalgate/internal/infra/confloader"
)

// DefaultStateDir returns ~/.metalgate.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".metalgate"
	}
	return filepath.Join(home, ".metalgate")
}

// DefaultConfigPath returns ~/.metalgate/cli.yaml.
func DefaultConfigPath() string {
	return filepath.Join(DefaultStateDir(), "cli.yaml")
}

// Load reads the configuration at path (default location when empty),
// applies METALGATE_* variables and then overrides. A missing file yields
// the defaults.
func Load(path string, overrides map[string]any) (*CLIConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	l := confloader.NewLoader(
		confloader.WithOptionalConfigFile(path),
		confloader.WithDefaults(defaults()),
	)

	cfg := &CLIConfig{}
	if err := l.Load(cfg, overrides); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path (default location when empty) with owner-only
// permissions.
func Save(cfg *CLIConfig, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
