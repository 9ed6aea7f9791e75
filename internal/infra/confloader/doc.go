// Package confloader loads layered configuration with koanf.
//
// Sources are merged in order, later ones winning:
//
//  1. defaults (WithDefaults)
//  2. YAML file (WithConfigFile)
//  3. environment variables with the METALGATE_ prefix
//  4. explicit overrides, typically command-line flags (LoadMap)
//
// Watcher reports changes of a configuration file via fsnotify.
package confloader
