package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/telemetry/logger"
)

// Header names accepted for API key authentication.
const (
	headerAPIKey    = "api-key"
	headerAPIKeyAlt = "X-API-Key"
)

const goldSource = "live market data"

// pricesResponse is the body of GET /dashboard/prices.
type pricesResponse struct {
	Prices map[domain.Commodity]domain.PriceQuote `json:"prices"`
	Errors map[domain.Commodity]string            `json:"errors"`
}

// quoteResponse is the body of GET /quotes/{commodity}.
type quoteResponse struct {
	Commodity   domain.Commodity `json:"commodity"`
	Price       float64          `json:"price"`
	Currency    string           `json:"currency"`
	Unit        string           `json:"unit"`
	LastUpdated float64          `json:"last_updated"`
	Source      string           `json:"source"`
}

// goldResponse is the body of GET /gold.
type goldResponse struct {
	GoldPrice   float64 `json:"gold_price"`
	Currency    string  `json:"currency"`
	LastUpdated float64 `json:"last_updated"`
	Unit        string  `json:"unit"`
	Source      string  `json:"source"`
}

// handleDashboardPrices handles GET /dashboard/prices. Every requested
// commodity appears in exactly one of prices or errors.
func (h *Handler) handleDashboardPrices(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireSession(w, r); !ok {
		return
	}
	known, unknown := domain.SplitCommodities(r.URL.Query().Get("commodities"))

	result := h.quotes.Prices(r.Context(), known)
	for _, c := range unknown {
		result.Set(c, domain.ErrQuote(domain.ReasonUnknown))
	}
	h.writeJSON(w, r, http.StatusOK, pricesResponse{
		Prices: result.Quotes(),
		Errors: result.Errors(),
	})
}

// handleQuote handles GET /quotes/{commodity} for API key holders.
func (h *Handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	c, err := domain.ParseCommodity(r.PathValue("commodity"))
	if err != nil {
		h.writeError(w, r, http.StatusNotFound, domain.ErrUnknownCommodity.Code,
			fmt.Sprintf("Unknown commodity: %s", r.PathValue("commodity")))
		return
	}
	if !h.useKey(w, r) {
		return
	}

	q, err := h.quotes.Quote(r.Context(), c)
	if err != nil {
		h.quoteUnavailable(w, r, c, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, quoteResponse{
		Commodity:   c,
		Price:       q.Quote.Price,
		Currency:    "USD",
		Unit:        q.Quote.Unit,
		LastUpdated: unixSeconds(q.FetchedAt),
		Source:      q.Source,
	})
}

// handleGold handles GET /gold for API key holders.
func (h *Handler) handleGold(w http.ResponseWriter, r *http.Request) {
	if !h.useKey(w, r) {
		return
	}

	q, err := h.quotes.Quote(r.Context(), domain.Gold)
	if err != nil {
		h.quoteUnavailable(w, r, domain.Gold, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, goldResponse{
		GoldPrice:   q.Quote.Price,
		Currency:    "USD",
		LastUpdated: unixSeconds(q.FetchedAt),
		Unit:        q.Quote.Unit,
		Source:      goldSource,
	})
}

// useKey validates the presented API key and records the use. It writes
// a 401 and returns false for missing, unknown or inactive keys.
func (h *Handler) useKey(w http.ResponseWriter, r *http.Request) bool {
	key := r.Header.Get(headerAPIKey)
	if key == "" {
		key = r.Header.Get(headerAPIKeyAlt)
	}
	if _, err := h.keys.Use(r.Context(), key); err != nil {
		h.metrics.KeyUses.WithLabelValues("rejected").Inc()
		if errors.Is(err, domain.ErrAPIKeyInactive) {
			h.writeError(w, r, http.StatusUnauthorized, domain.ErrAPIKeyInactive.Code, "Invalid or inactive API key")
			return false
		}
		h.handleServiceError(w, r, err)
		return false
	}
	h.metrics.KeyUses.WithLabelValues("ok").Inc()
	return true
}

func (h *Handler) quoteUnavailable(w http.ResponseWriter, r *http.Request, c domain.Commodity, err error) {
	logger.L(r.Context()).Warn("quote unavailable", "commodity", c, "error", err)
	if r.Context().Err() != nil {
		// Client went away.
		return
	}
	h.writeError(w, r, http.StatusServiceUnavailable, domain.ErrUpstreamUnavailable.Code,
		fmt.Sprintf("Unable to fetch %s price", c))
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixMicro()) / 1e6
}
