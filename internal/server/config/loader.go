package config

import (
	"fmt"

	"github.com/yndnr/metalgate/internal/infra/confloader"
)

// Load reads the configuration file at path (optional when empty), applies
// METALGATE_* variables and validates the result.
func Load(path string) (*ServerConfig, error) {
	opts := []confloader.Option{confloader.WithDefaults(defaults())}
	if path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}

	cfg := &ServerConfig{}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	if err := Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
