package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
)

// Token store kinds.
const (
	TokenStoreFile   = "file"
	TokenStoreBadger = "badger"
	TokenStoreNone   = "none"
)

// CLIConfig is the configuration of metalgate-cli.
type CLIConfig struct {
	// Server is the API base URL.
	Server string `koanf:"server" yaml:"server" json:"server"`

	// Output is the default output format: table, json or yaml.
	Output string `koanf:"output" yaml:"output" json:"output"`

	// Timeout bounds each HTTP request, e.g. "30s".
	Timeout string `koanf:"timeout" yaml:"timeout" json:"timeout"`

	// StateDir holds the session token and the local key cache.
	StateDir string `koanf:"state_dir" yaml:"state_dir" json:"state_dir"`

	// TokenStore selects where the session token is kept between runs.
	TokenStore string `koanf:"token_store" yaml:"token_store" json:"token_store"`

	// CAFile is a PEM bundle trusted in addition to the system roots when
	// the server uses a private CA.
	CAFile string `koanf:"ca_file" yaml:"ca_file,omitempty" json:"ca_file,omitempty"`

	// AdminSocket is the server's local admin socket, used by the admin
	// command.
	AdminSocket string `koanf:"admin_socket" yaml:"admin_socket,omitempty" json:"admin_socket,omitempty"`

	// Commodities is the default comma-separated list for prices and
	// dashboard; empty means all.
	Commodities string `koanf:"commodities" yaml:"commodities,omitempty" json:"commodities,omitempty"`
}

// Default returns the built-in configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Server:     "http://localhost:8000",
		Output:     "table",
		Timeout:    "30s",
		StateDir:   DefaultStateDir(),
		TokenStore: TokenStoreFile,
	}
}

// defaults is Default in koanf map form.
func defaults() map[string]any {
	d := Default()
	return map[string]any{
		"server":       d.Server,
		"output":       d.Output,
		"timeout":      d.Timeout,
		"state_dir":    d.StateDir,
		"token_store":  d.TokenStore,
		"ca_file":      d.CAFile,
		"admin_socket": d.AdminSocket,
		"commodities":  d.Commodities,
	}
}

// Validate checks field values.
func (c *CLIConfig) Validate() error {
	if c.Server == "" {
		return domain.ErrValidation.WithDetails("server must not be empty")
	}
	switch c.Output {
	case "table", "json", "yaml":
	default:
		return domain.ErrValidation.WithDetails(fmt.Sprintf("unknown output format %q", c.Output))
	}
	if _, err := c.RequestTimeout(); err != nil {
		return err
	}
	switch c.TokenStore {
	case TokenStoreFile, TokenStoreBadger, TokenStoreNone:
	default:
		return domain.ErrValidation.WithDetails(fmt.Sprintf("unknown token store %q", c.TokenStore))
	}
	if _, err := domain.ParseCommodities(c.Commodities); err != nil {
		return err
	}
	return nil
}

// RequestTimeout parses Timeout.
func (c *CLIConfig) RequestTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 0, domain.ErrValidation.WithDetails(fmt.Sprintf("invalid timeout %q", c.Timeout))
	}
	return d, nil
}

// TokenPath is the session token file used by the file token store.
func (c *CLIConfig) TokenPath() string {
	return filepath.Join(c.StateDir, "token")
}

// DataDir is the Badger directory used by the badger token store.
func (c *CLIConfig) DataDir() string {
	return filepath.Join(c.StateDir, "data")
}
