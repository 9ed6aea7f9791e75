package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/telemetry/logger"
)

// QuoteObserver receives the outcome of every upstream fetch.
type QuoteObserver interface {
	ObserveFetch(source string, c domain.Commodity, err error, elapsed time.Duration)
}

// QuoteServiceConfig holds configuration for QuoteService.
type QuoteServiceConfig struct {
	// CacheTTL is how long a fetched quote is served without refreshing (default: 1m).
	CacheTTL time.Duration

	// FetchTimeout bounds one refresh across all sources (default: 10s).
	FetchTimeout time.Duration
}

// DefaultQuoteServiceConfig returns default configuration.
func DefaultQuoteServiceConfig() *QuoteServiceConfig {
	return &QuoteServiceConfig{
		CacheTTL:     time.Minute,
		FetchTimeout: 10 * time.Second,
	}
}

// CachedQuote is a quote with the time it was fetched.
type CachedQuote struct {
	Quote     domain.PriceQuote
	Source    string
	FetchedAt time.Time
}

// QuoteService serves commodity quotes from a per-commodity cache,
// refreshing from its sources in order. Concurrent refreshes of one
// commodity are coalesced. When every source fails the last good quote is
// served.
type QuoteService struct {
	sources  []Source
	cfg      QuoteServiceConfig
	logger   logger.Logger
	observer QuoteObserver
	now      func() time.Time

	mu    sync.RWMutex
	cache map[domain.Commodity]CachedQuote
	group singleflight.Group
}

// QuoteOption configures a QuoteService.
type QuoteOption func(*QuoteService)

// WithQuoteLogger sets the logger.
func WithQuoteLogger(l logger.Logger) QuoteOption {
	return func(s *QuoteService) { s.logger = l }
}

// WithQuoteObserver sets the fetch observer.
func WithQuoteObserver(o QuoteObserver) QuoteOption {
	return func(s *QuoteService) { s.observer = o }
}

// NewQuoteService creates a QuoteService over sources, tried in order.
func NewQuoteService(sources []Source, config *QuoteServiceConfig, opts ...QuoteOption) *QuoteService {
	cfg := DefaultQuoteServiceConfig()
	if config != nil {
		if config.CacheTTL > 0 {
			cfg.CacheTTL = config.CacheTTL
		}
		if config.FetchTimeout > 0 {
			cfg.FetchTimeout = config.FetchTimeout
		}
	}
	s := &QuoteService{
		sources: sources,
		cfg:     *cfg,
		logger:  logger.Discard(),
		now:     time.Now,
		cache:   make(map[domain.Commodity]CachedQuote),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Quote returns a quote for c, refreshing it when the cached one is older
// than the cache TTL.
func (s *QuoteService) Quote(ctx context.Context, c domain.Commodity) (CachedQuote, error) {
	if !c.IsValid() {
		return CachedQuote{}, domain.ErrUnknownCommodity.WithDetails(string(c))
	}

	s.mu.RLock()
	cached, ok := s.cache[c]
	s.mu.RUnlock()
	if ok && s.now().Sub(cached.FetchedAt) < s.cfg.CacheTTL {
		return cached, nil
	}

	ch := s.group.DoChan(string(c), func() (any, error) {
		return s.refresh(c)
	})
	var r singleflight.Result
	select {
	case r = <-ch:
	case <-ctx.Done():
		r.Err = ctx.Err()
	}
	if err := r.Err; err != nil {
		if ok {
			s.logger.Warn("serving stale quote", "commodity", c, "fetched_at", cached.FetchedAt, "error", err)
			return cached, nil
		}
		return CachedQuote{}, err
	}
	return r.Val.(CachedQuote), nil
}

// refresh runs detached from the caller's context so that a coalesced
// fetch is not cancelled by the first caller leaving.
func (s *QuoteService) refresh(c domain.Commodity) (CachedQuote, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FetchTimeout)
	defer cancel()

	var errs []error
	for _, src := range s.sources {
		start := s.now()
		q, err := src.Fetch(ctx, c)
		if err == nil && !(q.Price > 0) {
			err = errors.New(domain.ReasonInvalid)
		}
		if s.observer != nil {
			s.observer.ObserveFetch(src.Name(), c, err, s.now().Sub(start))
		}
		if err != nil {
			s.logger.Debug("upstream fetch failed", "source", src.Name(), "commodity", c, "error", err)
			errs = append(errs, err)
			continue
		}
		if q.Unit == "" {
			q.Unit = c.DefaultUnit()
		}
		q.Commodity = c
		entry := CachedQuote{Quote: q, Source: src.Name(), FetchedAt: s.now().UTC()}
		s.mu.Lock()
		s.cache[c] = entry
		s.mu.Unlock()
		return entry, nil
	}

	if len(errs) == 0 {
		return CachedQuote{}, domain.ErrUpstreamUnavailable.WithDetails(domain.ReasonNoData)
	}
	return CachedQuote{}, domain.ErrUpstreamUnavailable.WithDetails(errs[len(errs)-1].Error()).WithCause(errors.Join(errs...))
}

// Prices fetches all of cs concurrently. Each commodity gets exactly one
// outcome and a failure never affects the others.
func (s *QuoteService) Prices(ctx context.Context, cs []domain.Commodity) *domain.AggregateResult {
	outcomes := make([]domain.QuoteResult, len(cs))
	var g errgroup.Group
	for i, c := range cs {
		g.Go(func() error {
			q, err := s.Quote(ctx, c)
			if err != nil {
				outcomes[i] = domain.ErrQuote(domain.DetailOf(err))
				return nil
			}
			outcomes[i] = domain.OkQuote(q.Quote)
			return nil
		})
	}
	_ = g.Wait()

	res := domain.NewAggregateResult()
	for i, c := range cs {
		res.Set(c, outcomes[i])
	}
	return res
}

// Cached returns the cached quote for c regardless of age.
func (s *QuoteService) Cached(c domain.Commodity) (CachedQuote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.cache[c]
	return q, ok
}
