// Package output renders CLI results as tables, JSON or YAML.
//
// Values that know their tabular shape implement Tabler; anything else is
// rendered as JSON when the table format is requested.
package output
