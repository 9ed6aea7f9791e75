package service

import (
	"context"
	"net/url"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/telemetry/logger"
)

// pricesResponse is the body of GET /dashboard/prices.
type pricesResponse struct {
	Prices map[string]*domain.PriceQuote `json:"prices"`
	Errors map[string]string             `json:"errors"`
}

// PriceAggregationService fetches dashboard quotes and turns the server's
// partial answer into exactly one outcome per commodity.
type PriceAggregationService struct {
	session SessionSource
	logger  logger.Logger
}

// NewPriceAggregationService creates the service.
func NewPriceAggregationService(session SessionSource, log logger.Logger) *PriceAggregationService {
	if log == nil {
		log = logger.Default()
	}
	return &PriceAggregationService{session: session, logger: log}
}

// FetchAll requests quotes for commodities (all when empty). It never
// fails as a whole: a transport-level error marks every commodity
// unavailable and is reported by the result's Failure.
func (s *PriceAggregationService) FetchAll(ctx context.Context, commodities []domain.Commodity) *domain.AggregateResult {
	if len(commodities) == 0 {
		commodities = domain.Commodities()
	}

	_, c, err := authorize(s.session)
	if err != nil {
		return domain.UnavailableResult(commodities, err)
	}

	var known []domain.Commodity
	for _, name := range commodities {
		if name.IsValid() {
			known = append(known, name)
		}
	}

	var resp pricesResponse
	if len(known) > 0 {
		query := url.Values{"commodities": {domain.JoinCommodities(known)}}
		if err := c.Get(ctx, "/dashboard/prices", query, &resp); err != nil {
			s.logger.Debug("price request failed", "error", err)
			return domain.UnavailableResult(commodities, err)
		}
	}

	return aggregate(commodities, resp)
}

// aggregate resolves each commodity: unsupported names fail locally, a
// quote wins over an error, a quote with a non-positive price is invalid,
// and neither means no data.
func aggregate(commodities []domain.Commodity, resp pricesResponse) *domain.AggregateResult {
	result := domain.NewAggregateResult()
	for _, c := range commodities {
		q := resp.Prices[string(c)]
		switch {
		case !c.IsValid():
			result.Set(c, domain.ErrQuote(domain.ReasonUnknown))
		case q != nil && q.Price <= 0:
			result.Set(c, domain.ErrQuote(domain.ReasonInvalid))
		case q != nil:
			quote := *q
			quote.Commodity = c
			if quote.Unit == "" {
				quote.Unit = c.DefaultUnit()
			}
			result.Set(c, domain.OkQuote(quote))
		case resp.Errors[string(c)] != "":
			result.Set(c, domain.ErrQuote(resp.Errors[string(c)]))
		default:
			result.Set(c, domain.ErrQuote(domain.ReasonNoData))
		}
	}
	return result
}
