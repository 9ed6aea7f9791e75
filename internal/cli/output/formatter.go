package output

import (
	"fmt"
	"io"
)

// Format is an output format name.
type Format string

// Supported formats.
const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates s.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
	}
}

// Formatter writes data in one format.
type Formatter interface {
	Format(w io.Writer, data any) error
}

// NewFormatter returns the formatter for format; unknown formats fall back
// to table.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return JSONFormatter{}
	case FormatYAML:
		return YAMLFormatter{}
	default:
		return TableFormatter{}
	}
}
