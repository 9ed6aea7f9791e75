package output

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
)

const timeLayout = "2006-01-02 15:04"

// KeyView is the printable form of an API key.
type KeyView struct {
	Key        string     `json:"key" yaml:"key"`
	Active     bool       `json:"is_active" yaml:"is_active"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	LastUsed   *time.Time `json:"last_used" yaml:"last_used"`
	UsageCount int64      `json:"usage_count" yaml:"usage_count"`
}

// NewKeyView converts k.
func NewKeyView(k *domain.APIKey) KeyView {
	v := KeyView{
		Key:        k.Key,
		Active:     k.IsActive,
		CreatedAt:  k.CreatedAt.Local(),
		UsageCount: k.UsageCount,
	}
	if !k.NeverUsed() {
		t := k.LastUsedAt.Local()
		v.LastUsed = &t
	}
	return v
}

// Table implements Tabler.
func (v KeyView) Table() *Table {
	return KeyList{v}.Table()
}

// KeyList is a printable list of API keys.
type KeyList []KeyView

// NewKeyList converts keys.
func NewKeyList(keys []*domain.APIKey) KeyList {
	out := make(KeyList, 0, len(keys))
	for _, k := range keys {
		out = append(out, NewKeyView(k))
	}
	return out
}

// Table implements Tabler.
func (l KeyList) Table() *Table {
	t := NewTable("KEY", "STATUS", "CREATED", "LAST USED", "USAGE")
	for _, k := range l {
		t.AddRow(k.Key, activeLabel(k.Active), k.CreatedAt.Format(timeLayout),
			lastUsedLabel(k.LastUsed), strconv.FormatInt(k.UsageCount, 10))
	}
	return t
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

func lastUsedLabel(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(timeLayout)
}

// UsageReport is the output of `stats`: totals plus, when keys are known,
// each key's share of the usage.
type UsageReport struct {
	TotalKeys  int64      `json:"total_keys" yaml:"total_keys"`
	TotalUsage int64      `json:"total_usage" yaml:"total_usage"`
	Keys       []KeyShare `json:"keys,omitempty" yaml:"keys,omitempty"`
}

// KeyShare is one key's usage within a UsageReport.
type KeyShare struct {
	Key        string  `json:"key" yaml:"key"`
	UsageCount int64   `json:"usage_count" yaml:"usage_count"`
	Share      float64 `json:"share" yaml:"share"`
}

// NewUsageReport builds a report from stats and the (possibly empty) key
// list.
func NewUsageReport(stats domain.UsageStats, keys []*domain.APIKey) UsageReport {
	r := UsageReport{TotalKeys: stats.TotalKeys, TotalUsage: stats.TotalUsage}
	for _, k := range keys {
		share := 0.0
		if stats.TotalUsage > 0 {
			share = float64(k.UsageCount) / float64(stats.TotalUsage)
		}
		r.Keys = append(r.Keys, KeyShare{Key: k.Key, UsageCount: k.UsageCount, Share: share})
	}
	return r
}

// RenderTable implements TableRenderer.
func (r UsageReport) RenderTable(w io.Writer) error {
	totals := NewTable("TOTAL KEYS", "TOTAL USAGE")
	totals.AddRow(strconv.FormatInt(r.TotalKeys, 10), strconv.FormatInt(r.TotalUsage, 10))
	if err := totals.Render(w); err != nil {
		return err
	}
	if len(r.Keys) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	t := NewTable("KEY", "USAGE", "SHARE")
	for _, k := range r.Keys {
		t.AddRow(k.Key, strconv.FormatInt(k.UsageCount, 10),
			fmt.Sprintf("%s %5.1f%%", Bar(k.Share, 20), k.Share*100))
	}
	return t.Render(w)
}

// QuoteReport is the printable form of an aggregate price result. Its JSON
// and YAML shape matches the API: {prices: {...}, errors: {...}}.
type QuoteReport struct {
	Prices map[string]QuoteEntry `json:"prices" yaml:"prices"`
	Errors map[string]string     `json:"errors" yaml:"errors"`

	order []domain.Commodity
	views map[domain.Commodity]domain.QuoteView
}

// QuoteEntry is one successful quote.
type QuoteEntry struct {
	Price float64 `json:"price" yaml:"price"`
	Unit  string  `json:"unit" yaml:"unit"`
}

// NewQuoteReport converts res. Commodities listed in order but missing
// from res are shown as loading.
func NewQuoteReport(res *domain.AggregateResult, order []domain.Commodity) QuoteReport {
	r := QuoteReport{
		Prices: make(map[string]QuoteEntry),
		Errors: make(map[string]string),
		views:  make(map[domain.Commodity]domain.QuoteView),
	}
	if len(order) == 0 {
		order = res.Commodities()
	}
	r.order = order
	for c, q := range res.Quotes() {
		r.Prices[string(c)] = QuoteEntry{Price: q.Price, Unit: q.Unit}
	}
	for c, reason := range res.Errors() {
		r.Errors[string(c)] = reason
	}
	for _, c := range order {
		r.views[c] = res.View(c)
	}
	return r
}

// Table implements Tabler.
func (r QuoteReport) Table() *Table {
	t := NewTable("COMMODITY", "PRICE", "UNIT", "STATUS")
	for _, c := range r.order {
		v := r.views[c]
		switch v.State {
		case domain.QuoteReady:
			t.AddRow(string(c), fmt.Sprintf("$%.2f", v.Quote.Price), v.Quote.Unit, "ok")
		case domain.QuoteFailed:
			t.AddRow(string(c), "-", "-", "error: "+v.Reason)
		default:
			t.AddRow(string(c), "-", "-", "loading")
		}
	}
	return t
}

// Dashboard combines usage and prices; each part carries its own error.
type Dashboard struct {
	Usage      *UsageReport `json:"usage,omitempty" yaml:"usage,omitempty"`
	UsageError string       `json:"usage_error,omitempty" yaml:"usage_error,omitempty"`
	Quotes     QuoteReport  `json:"quotes" yaml:"quotes"`
}

// RenderTable implements TableRenderer.
func (d Dashboard) RenderTable(w io.Writer) error {
	fmt.Fprintln(w, "USAGE")
	if d.Usage != nil {
		if err := d.Usage.RenderTable(w); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(w, "error: %s\n", d.UsageError)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "PRICES")
	return d.Quotes.Table().Render(w)
}
