// Package config holds the CLI configuration (~/.metalgate/cli.yaml).
//
// Values come from the file, METALGATE_* environment variables and global
// flags, in increasing priority. Save writes only the file layer.
package config
