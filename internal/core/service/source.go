package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/infra/buildinfo"
)

// Source fetches a live quote for one commodity.
type Source interface {
	Name() string
	Fetch(ctx context.Context, c domain.Commodity) (domain.PriceQuote, error)
}

// DefaultYahooURL is the Yahoo Finance chart API root.
const DefaultYahooURL = "https://query1.finance.yahoo.com"

// FuturesSymbols maps commodities to their front-month futures tickers.
var FuturesSymbols = map[domain.Commodity]string{
	domain.Gold:      "GC=F",
	domain.Silver:    "SI=F",
	domain.Platinum:  "PL=F",
	domain.Palladium: "PA=F",
	domain.Copper:    "HG=F",
}

// YahooSource reads the last traded futures price from the chart API.
type YahooSource struct {
	baseURL string
	client  *http.Client
}

// NewYahooSource creates a source against baseURL (DefaultYahooURL when
// empty).
func NewYahooSource(baseURL string, timeout time.Duration) *YahooSource {
	if baseURL == "" {
		baseURL = DefaultYahooURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &YahooSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Name implements Source.
func (s *YahooSource) Name() string { return "yahoo" }

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch implements Source.
func (s *YahooSource) Fetch(ctx context.Context, c domain.Commodity) (domain.PriceQuote, error) {
	symbol, ok := FuturesSymbols[c]
	if !ok {
		return domain.PriceQuote{}, domain.ErrUnknownCommodity.WithDetails(string(c))
	}

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?range=1d&interval=1m", s.baseURL, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent("metalgate-server"))
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("fetch %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	var body chartResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	if body.Chart.Error != nil && body.Chart.Error.Description != "" {
		return domain.PriceQuote{}, fmt.Errorf("%s: %s", symbol, body.Chart.Error.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.PriceQuote{}, fmt.Errorf("%s: HTTP %d", symbol, resp.StatusCode)
	}
	if decodeErr != nil {
		return domain.PriceQuote{}, fmt.Errorf("decode %s: %w", symbol, decodeErr)
	}
	if len(body.Chart.Result) == 0 {
		return domain.PriceQuote{}, fmt.Errorf("%s: %s", symbol, domain.ReasonNoData)
	}

	return domain.PriceQuote{
		Commodity: c,
		Price:     body.Chart.Result[0].Meta.RegularMarketPrice,
		Unit:      c.DefaultUnit(),
	}, nil
}

// StaticSource serves fixed prices. It backs offline deployments and tests.
type StaticSource struct {
	prices map[domain.Commodity]float64
}

// NewStaticSource creates a source answering with prices. Commodities not
// listed fail with no data.
func NewStaticSource(prices map[domain.Commodity]float64) *StaticSource {
	cp := make(map[domain.Commodity]float64, len(prices))
	for c, p := range prices {
		cp[c] = p
	}
	return &StaticSource{prices: cp}
}

// Name implements Source.
func (s *StaticSource) Name() string { return "static" }

// Fetch implements Source.
func (s *StaticSource) Fetch(_ context.Context, c domain.Commodity) (domain.PriceQuote, error) {
	p, ok := s.prices[c]
	if !ok {
		return domain.PriceQuote{}, fmt.Errorf("%s: %s", c, domain.ReasonNoData)
	}
	return domain.PriceQuote{Commodity: c, Price: p, Unit: c.DefaultUnit()}, nil
}
