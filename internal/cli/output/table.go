package output

import (
	"io"
	"strings"
	"text/tabwriter"
)

// Table is rows of cells under optional headers.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Tabler is implemented by values with a table rendering.
type Tabler interface {
	Table() *Table
}

// TableRenderer is implemented by values that render several sections.
type TableRenderer interface {
	RenderTable(w io.Writer) error
}

// NewTable creates a table with headers.
func NewTable(headers ...string) *Table {
	return &Table{Headers: headers}
}

// AddRow appends a row.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

// Render writes the table with aligned columns.
func (t *Table) Render(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if len(t.Headers) > 0 {
		if _, err := io.WriteString(tw, strings.Join(t.Headers, "\t")+"\n"); err != nil {
			return err
		}
	}
	for _, row := range t.Rows {
		if _, err := io.WriteString(tw, strings.Join(row, "\t")+"\n"); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// TableFormatter renders Tabler values and falls back to JSON otherwise.
type TableFormatter struct{}

// Format implements Formatter.
func (TableFormatter) Format(w io.Writer, data any) error {
	switch v := data.(type) {
	case nil:
		return nil
	case *Table:
		return v.Render(w)
	case TableRenderer:
		return v.RenderTable(w)
	case Tabler:
		return v.Table().Render(w)
	case string:
		_, err := io.WriteString(w, v+"\n")
		return err
	default:
		return JSONFormatter{}.Format(w, data)
	}
}
