package domain

import (
	"fmt"
	"strings"
)

// Commodity identifies a tradable metal.
type Commodity string

// Supported commodities.
const (
	Gold      Commodity = "gold"
	Silver    Commodity = "silver"
	Platinum  Commodity = "platinum"
	Palladium Commodity = "palladium"
	Copper    Commodity = "copper"
)

// Units reported by upstream sources.
const (
	UnitTroyOunce = "per troy ounce"
	UnitPound     = "per pound"
)

// Commodities returns all supported commodities in display order.
func Commodities() []Commodity {
	return []Commodity{Gold, Silver, Platinum, Palladium, Copper}
}

// IsValid reports whether c is supported.
func (c Commodity) IsValid() bool {
	switch c {
	case Gold, Silver, Platinum, Palladium, Copper:
		return true
	}
	return false
}

// DefaultUnit returns the quoting unit used for c.
func (c Commodity) DefaultUnit() string {
	if c == Copper {
		return UnitPound
	}
	return UnitTroyOunce
}

// ParseCommodity parses a case-insensitive commodity name.
func ParseCommodity(s string) (Commodity, error) {
	c := Commodity(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", ErrUnknownCommodity.WithDetails(s)
	}
	return c, nil
}

// ParseCommodities parses a comma-separated list, dropping duplicates.
// An empty string yields all commodities.
func ParseCommodities(s string) ([]Commodity, error) {
	known, unknown := SplitCommodities(s)
	if len(unknown) > 0 {
		return nil, ErrUnknownCommodity.WithDetails(string(unknown[0]))
	}
	return known, nil
}

// SplitCommodities parses a comma-separated list into supported and
// unsupported names, both lowercased and without duplicates. An empty
// string yields all commodities.
func SplitCommodities(s string) (known, unknown []Commodity) {
	if strings.TrimSpace(s) == "" {
		return Commodities(), nil
	}
	seen := make(map[Commodity]bool)
	for _, part := range strings.Split(s, ",") {
		c := Commodity(strings.ToLower(strings.TrimSpace(part)))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		if c.IsValid() {
			known = append(known, c)
		} else {
			unknown = append(unknown, c)
		}
	}
	return known, unknown
}

// JoinCommodities renders commodities as a comma-separated list.
func JoinCommodities(cs []Commodity) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

// PriceQuote is an immutable price observation.
type PriceQuote struct {
	Commodity Commodity `json:"-"`
	Price     float64   `json:"price"`
	Unit      string    `json:"unit"`
}

// Reasons attached to failed outcomes.
const (
	ReasonNoData      = "no data returned"
	ReasonInvalid     = "invalid price"
	ReasonUnavailable = "unavailable"
	ReasonUnknown     = "unknown commodity"
)

// QuoteResult is the outcome for one commodity: exactly one of a quote or
// a failure reason.
type QuoteResult struct {
	quote  *PriceQuote
	reason string
}

// OkQuote wraps a successful quote.
func OkQuote(q PriceQuote) QuoteResult {
	return QuoteResult{quote: &q}
}

// ErrQuote wraps a failure reason.
func ErrQuote(reason string) QuoteResult {
	if reason == "" {
		reason = ReasonUnavailable
	}
	return QuoteResult{reason: reason}
}

// Quote returns the quote and true on success.
func (r QuoteResult) Quote() (PriceQuote, bool) {
	if r.quote == nil {
		return PriceQuote{}, false
	}
	return *r.quote, true
}

// Reason returns the failure reason and true on failure.
func (r QuoteResult) Reason() (string, bool) {
	if r.quote != nil {
		return "", false
	}
	return r.reason, true
}

// QuoteState is the presentation state of one commodity.
type QuoteState int

// Quote presentation states.
const (
	QuoteLoading QuoteState = iota
	QuoteReady
	QuoteFailed
)

// String returns the state name.
func (s QuoteState) String() string {
	switch s {
	case QuoteLoading:
		return "loading"
	case QuoteReady:
		return "ready"
	case QuoteFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// QuoteView is what a renderer needs for one commodity.
type QuoteView struct {
	State  QuoteState
	Quote  PriceQuote
	Reason string
}

// AggregateResult holds exactly one outcome per requested commodity.
// The zero value is an empty result.
type AggregateResult struct {
	outcomes map[Commodity]QuoteResult
	order    []Commodity
	failure  error
}

// NewAggregateResult creates an empty result.
func NewAggregateResult() *AggregateResult {
	return &AggregateResult{outcomes: make(map[Commodity]QuoteResult)}
}

// UnavailableResult marks every commodity as unavailable because of cause.
func UnavailableResult(commodities []Commodity, cause error) *AggregateResult {
	r := NewAggregateResult()
	reason := ReasonUnavailable
	if cause != nil {
		reason = fmt.Sprintf("%s: %s", ReasonUnavailable, DetailOf(cause))
	}
	for _, c := range commodities {
		r.Set(c, ErrQuote(reason))
	}
	r.failure = cause
	return r
}

// Set records the outcome for c, replacing any previous one.
func (r *AggregateResult) Set(c Commodity, res QuoteResult) {
	if r.outcomes == nil {
		r.outcomes = make(map[Commodity]QuoteResult)
	}
	if _, ok := r.outcomes[c]; !ok {
		r.order = append(r.order, c)
	}
	r.outcomes[c] = res
}

// Outcome returns the outcome for c and whether one exists.
func (r *AggregateResult) Outcome(c Commodity) (QuoteResult, bool) {
	res, ok := r.outcomes[c]
	return res, ok
}

// Commodities returns the commodities with an outcome, in insertion order.
func (r *AggregateResult) Commodities() []Commodity {
	out := make([]Commodity, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of outcomes.
func (r *AggregateResult) Len() int {
	return len(r.outcomes)
}

// Quotes returns the successful outcomes.
func (r *AggregateResult) Quotes() map[Commodity]PriceQuote {
	out := make(map[Commodity]PriceQuote)
	for c, res := range r.outcomes {
		if q, ok := res.Quote(); ok {
			out[c] = q
		}
	}
	return out
}

// Errors returns the failed outcomes keyed by commodity.
func (r *AggregateResult) Errors() map[Commodity]string {
	out := make(map[Commodity]string)
	for c, res := range r.outcomes {
		if reason, ok := res.Reason(); ok {
			out[c] = reason
		}
	}
	return out
}

// Failure returns the transport-level cause when the whole request failed.
func (r *AggregateResult) Failure() error {
	return r.failure
}

// View returns the presentation state of c. Commodities absent from the
// result are Loading.
func (r *AggregateResult) View(c Commodity) QuoteView {
	res, ok := r.outcomes[c]
	if !ok {
		return QuoteView{State: QuoteLoading}
	}
	if q, ok := res.Quote(); ok {
		return QuoteView{State: QuoteReady, Quote: q}
	}
	reason, _ := res.Reason()
	return QuoteView{State: QuoteFailed, Reason: reason}
}
