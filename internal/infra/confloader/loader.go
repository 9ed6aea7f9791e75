package confloader

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the environment variable prefix.
const DefaultEnvPrefix = "METALGATE_"

// Loader merges configuration sources into a typed struct.
type Loader struct {
	k            *koanf.Koanf
	envPrefix    string
	filePath     string
	optionalFile bool
	defaults     map[string]any
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the YAML file to load. A missing file is an error.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
		l.optionalFile = false
	}
}

// WithOptionalConfigFile is like WithConfigFile but tolerates a missing
// file.
func WithOptionalConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
		l.optionalFile = true
	}
}

// WithDefaults sets the lowest-priority values. Keys may be dotted.
func WithDefaults(defaults map[string]any) Option {
	return func(l *Loader) {
		l.defaults = defaults
	}
}

// NewLoader creates a loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load merges defaults, file and environment, then unmarshals into target
// using koanf struct tags. Call LoadMap before Load to add overrides on top.
func (l *Loader) Load(target any, overrides ...map[string]any) error {
	if l.defaults != nil {
		if err := l.LoadMap(l.defaults); err != nil {
			return fmt.Errorf("load defaults: %w", err)
		}
	}
	if err := l.LoadFile(l.filePath); err != nil {
		return err
	}
	if err := l.LoadEnv(); err != nil {
		return err
	}
	for _, o := range overrides {
		if err := l.LoadMap(o); err != nil {
			return err
		}
	}
	if err := l.Unmarshal(target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// LoadFile merges a YAML file. An empty path is a no-op.
func (l *Loader) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	if l.optionalFile && path == l.filePath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil
		}
	}
	if err := l.k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("load config file %s: %w", path, err)
	}
	return nil
}

// LoadEnv merges environment variables carrying the prefix.
//
// A variable is matched against already known keys first, so
// METALGATE_DEFAULT_OUTPUT sets default_output when that key has a default.
// Unknown variables fall back to treating every underscore as nesting:
// METALGATE_LOG_LEVEL becomes log.level.
func (l *Loader) LoadEnv() error {
	known := make(map[string]string, len(l.k.Keys()))
	for _, key := range l.k.Keys() {
		known[envName(key)] = key
	}

	transform := func(s string) string {
		name := strings.TrimPrefix(s, l.envPrefix)
		if key, ok := known[strings.ToUpper(name)]; ok {
			return key
		}
		return strings.ReplaceAll(strings.ToLower(name), "_", ".")
	}

	if err := l.k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// LoadMap merges values from a map. Keys may be dotted.
func (l *Loader) LoadMap(data map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	if err := l.k.Load(mapProvider(data), nil); err != nil {
		return fmt.Errorf("load map: %w", err)
	}
	return nil
}

// Unmarshal decodes the merged configuration into target.
func (l *Loader) Unmarshal(target any) error {
	return l.k.Unmarshal("", target)
}

// String returns the merged value of key.
func (l *Loader) String(key string) string {
	return l.k.String(key)
}

// Exists reports whether key has a value.
func (l *Loader) Exists(key string) bool {
	return l.k.Exists(key)
}

// All returns the merged configuration as a flat map.
func (l *Loader) All() map[string]any {
	return l.k.All()
}

// envName maps a dotted key to its environment spelling without prefix.
func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
