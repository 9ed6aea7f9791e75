package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/metalgate/internal/core/domain"
)

// fakeSource answers from a map and counts fetches.
type fakeSource struct {
	mu     sync.Mutex
	name   string
	prices map[domain.Commodity]float64
	fail   map[domain.Commodity]error
	calls  atomic.Int32
	delay  time.Duration
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Fetch(ctx context.Context, c domain.Commodity) (domain.PriceQuote, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[c]; err != nil {
		return domain.PriceQuote{}, err
	}
	p, ok := s.prices[c]
	if !ok {
		return domain.PriceQuote{}, errors.New(domain.ReasonNoData)
	}
	return domain.PriceQuote{Commodity: c, Price: p}, nil
}

func (s *fakeSource) setFail(c domain.Commodity, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail == nil {
		s.fail = map[domain.Commodity]error{}
	}
	s.fail[c] = err
}

type recordingObserver struct {
	mu   sync.Mutex
	errs []error
}

func (o *recordingObserver) ObserveFetch(_ string, _ domain.Commodity, err error, _ time.Duration) {
	o.mu.Lock()
	o.errs = append(o.errs, err)
	o.mu.Unlock()
}

func TestQuoteService_PartialFailure(t *testing.T) {
	src := &fakeSource{name: "fake", prices: map[domain.Commodity]float64{domain.Gold: 2350.5}}
	src.setFail(domain.Silver, errors.New("rate limited"))
	svc := NewQuoteService([]Source{src}, nil)

	res := svc.Prices(context.Background(), []domain.Commodity{domain.Gold, domain.Silver})

	if res.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", res.Len())
	}
	q, ok := res.Quotes()[domain.Gold]
	if !ok || q.Price != 2350.5 || q.Unit != domain.UnitTroyOunce {
		t.Errorf("gold = %+v, %v", q, ok)
	}
	if reason := res.Errors()[domain.Silver]; reason != "rate limited" {
		t.Errorf("silver reason = %q", reason)
	}
}

func TestQuoteService_InvalidPrice(t *testing.T) {
	src := &fakeSource{name: "fake", prices: map[domain.Commodity]float64{domain.Copper: 0, domain.Gold: -1}}
	svc := NewQuoteService([]Source{src}, nil)

	res := svc.Prices(context.Background(), []domain.Commodity{domain.Copper, domain.Gold})
	for _, c := range []domain.Commodity{domain.Copper, domain.Gold} {
		if reason := res.Errors()[c]; reason != domain.ReasonInvalid {
			t.Errorf("%s reason = %q, want %q", c, reason, domain.ReasonInvalid)
		}
	}
}

func TestQuoteService_FallsThroughSources(t *testing.T) {
	primary := &fakeSource{name: "primary"}
	primary.setFail(domain.Gold, errors.New("down"))
	backup := &fakeSource{name: "backup", prices: map[domain.Commodity]float64{domain.Gold: 2000}}
	obs := &recordingObserver{}
	svc := NewQuoteService([]Source{primary, backup}, nil, WithQuoteObserver(obs))

	q, err := svc.Quote(context.Background(), domain.Gold)
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	if q.Source != "backup" || q.Quote.Price != 2000 {
		t.Errorf("Quote() = %+v", q)
	}
	if len(obs.errs) != 2 || obs.errs[0] == nil || obs.errs[1] != nil {
		t.Errorf("observed = %v", obs.errs)
	}
}

func TestQuoteService_Cache(t *testing.T) {
	src := &fakeSource{name: "fake", prices: map[domain.Commodity]float64{domain.Gold: 2000}}
	svc := NewQuoteService([]Source{src}, &QuoteServiceConfig{CacheTTL: time.Minute})
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Quote(ctx, domain.Gold); err != nil {
			t.Fatal(err)
		}
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("fetches within TTL = %d, want 1", got)
	}

	now = now.Add(2 * time.Minute)
	if _, err := svc.Quote(ctx, domain.Gold); err != nil {
		t.Fatal(err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Errorf("fetches after TTL = %d, want 2", got)
	}
}

func TestQuoteService_ServesLastGoodValue(t *testing.T) {
	src := &fakeSource{name: "fake", prices: map[domain.Commodity]float64{domain.Gold: 2000}}
	svc := NewQuoteService([]Source{src}, &QuoteServiceConfig{CacheTTL: time.Minute})
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := svc.Quote(ctx, domain.Gold); err != nil {
		t.Fatal(err)
	}
	src.setFail(domain.Gold, errors.New("down"))
	now = now.Add(5 * time.Minute)

	q, err := svc.Quote(ctx, domain.Gold)
	if err != nil {
		t.Fatalf("Quote() with failing upstream error = %v", err)
	}
	if q.Quote.Price != 2000 {
		t.Errorf("stale quote = %+v", q)
	}
}

func TestQuoteService_NoValueYet(t *testing.T) {
	src := &fakeSource{name: "fake"}
	src.setFail(domain.Gold, errors.New("down"))
	svc := NewQuoteService([]Source{src}, nil)

	_, err := svc.Quote(context.Background(), domain.Gold)
	if !errors.Is(err, domain.ErrUpstreamUnavailable) || domain.DetailOf(err) != "down" {
		t.Errorf("Quote() error = %v", err)
	}
	if _, err := svc.Quote(context.Background(), domain.Commodity("tin")); !errors.Is(err, domain.ErrUnknownCommodity) {
		t.Errorf("Quote(tin) error = %v", err)
	}
}

func TestQuoteService_CoalescesRefreshes(t *testing.T) {
	src := &fakeSource{name: "fake", prices: map[domain.Commodity]float64{domain.Gold: 2000}, delay: 50 * time.Millisecond}
	svc := NewQuoteService([]Source{src}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Quote(context.Background(), domain.Gold); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if got := src.calls.Load(); got != 1 {
		t.Errorf("concurrent refreshes fetched %d times, want 1", got)
	}
}

func TestQuoteService_PricesOneOutcomeEach(t *testing.T) {
	src := &fakeSource{name: "fake", prices: map[domain.Commodity]float64{domain.Gold: 1, domain.Platinum: 3}}
	svc := NewQuoteService([]Source{src}, nil)

	all := domain.Commodities()
	res := svc.Prices(context.Background(), all)

	quotes, errs := res.Quotes(), res.Errors()
	if len(quotes)+len(errs) != len(all) {
		t.Fatalf("|quotes|+|errors| = %d, want %d", len(quotes)+len(errs), len(all))
	}
	for c := range quotes {
		if _, dup := errs[c]; dup {
			t.Errorf("%s is both a quote and an error", c)
		}
	}
	got := res.Commodities()
	for i, c := range all {
		if got[i] != c {
			t.Errorf("order = %v, want %v", got, all)
			break
		}
	}
}

func TestYahooSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "metalgate-server/") {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		switch r.URL.Path {
		case "/v8/finance/chart/GC=F":
			w.Write([]byte(`{"chart":{"result":[{"meta":{"currency":"USD","regularMarketPrice":2351.2}}],"error":null}}`))
		case "/v8/finance/chart/SI=F":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
		case "/v8/finance/chart/PL=F":
			w.Write([]byte(`{"chart":{"result":[],"error":null}}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	src := NewYahooSource(srv.URL, time.Second)
	ctx := context.Background()

	q, err := src.Fetch(ctx, domain.Gold)
	if err != nil || q.Price != 2351.2 || q.Unit != domain.UnitTroyOunce {
		t.Errorf("Fetch(gold) = %+v, %v", q, err)
	}

	tests := []struct {
		c    domain.Commodity
		want string
	}{
		{domain.Silver, "symbol may be delisted"},
		{domain.Platinum, domain.ReasonNoData},
		{domain.Palladium, "HTTP 502"},
	}
	for _, tt := range tests {
		if _, err := src.Fetch(ctx, tt.c); err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Fetch(%s) error = %v, want %q", tt.c, err, tt.want)
		}
	}
}

func TestStaticSource(t *testing.T) {
	src := NewStaticSource(map[domain.Commodity]float64{domain.Copper: 4.5})
	q, err := src.Fetch(context.Background(), domain.Copper)
	if err != nil || q.Price != 4.5 || q.Unit != domain.UnitPound {
		t.Errorf("Fetch(copper) = %+v, %v", q, err)
	}
	if _, err := src.Fetch(context.Background(), domain.Gold); err == nil {
		t.Error("Fetch(gold) should fail")
	}
}
