package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ratecore/internal/domain"
)

type fakeSource struct {
	quotes     map[string]domain.RawQuote
	err        error
	fetchCalls int
}

func (f *fakeSource) FetchAll(ctx context.Context) ([]domain.RawQuote, error) {
	f.fetchCalls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.RawQuote, 0, len(f.quotes))
	for _, q := range f.quotes {
		out = append(out, q)
	}
	return out, nil
}

func (f *fakeSource) FetchSymbol(ctx context.Context, sym domain.Symbol) (domain.RawQuote, error) {
	f.fetchCalls++
	if f.err != nil {
		return domain.RawQuote{}, f.err
	}
	q, ok := f.quotes[sym.String()]
	if !ok {
		return domain.RawQuote{}, domain.ErrSymbolNotFound
	}
	return q, nil
}

func (f *fakeSource) HealthCheck(ctx context.Context) bool { return f.err == nil }

func (f *fakeSource) Metrics() domain.RequestMetrics { return domain.RequestMetrics{} }

type fakeCache struct {
	entries map[string]domain.RawQuote
	getErr  bool
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]domain.RawQuote{}}
}

func (f *fakeCache) Get(ctx context.Context, sym domain.Symbol) (domain.RawQuote, bool) {
	if f.getErr {
		return domain.RawQuote{}, false // fail open
	}
	q, ok := f.entries[sym.String()]
	return q, ok
}

func (f *fakeCache) Set(ctx context.Context, q domain.RawQuote) error {
	f.sets++
	f.entries[q.Symbol.String()] = q
	return nil
}

func (f *fakeCache) Invalidate(ctx context.Context, sym domain.Symbol) error {
	delete(f.entries, sym.String())
	return nil
}

func (f *fakeCache) InvalidateCategory(ctx context.Context, category string) (int, error) {
	n := len(f.entries)
	f.entries = map[string]domain.RawQuote{}
	return n, nil
}

func (f *fakeCache) Healthy(ctx context.Context) bool { return !f.getErr }

func rateQuote(pair string, ask, bid float64) domain.RawQuote {
	sym, _ := domain.ParseSymbol(pair)
	return domain.RawQuote{
		Symbol:    sym,
		Ask:       decimal.NewFromFloat(ask),
		Bid:       decimal.NewFromFloat(bid),
		Last:      decimal.NewFromFloat(bid),
		FetchedAt: time.Now(),
	}
}

func newRateService(src *fakeSource, cache *fakeCache, defaultPct float64) *RateService {
	cfg := domain.MarkupConfig{DefaultPercent: decimal.NewFromFloat(defaultPct)}
	return NewRateService(src, cache, NewMarkupEngine(), cfg)
}

func TestEffectivePriceCacheHitSkipsUpstream(t *testing.T) {
	src := &fakeSource{quotes: map[string]domain.RawQuote{}}
	cache := newFakeCache()
	sym, _ := domain.ParseSymbol("BTC/USDT")
	cache.entries[sym.String()] = rateQuote("BTC/USDT", 45100, 44900)

	svc := newRateService(src, cache, 2.5)
	priced, err := svc.EffectivePrice(context.Background(), sym, domain.DirectionBuy)
	if err != nil {
		t.Fatalf("EffectivePrice failed: %v", err)
	}
	if src.fetchCalls != 0 {
		t.Errorf("cache hit should not touch upstream, got %d calls", src.fetchCalls)
	}
	if !priced.MarketRate.Equal(decimal.NewFromInt(45100)) {
		t.Errorf("expected market rate 45100, got %s", priced.MarketRate)
	}
}

func TestEffectivePriceMissFetchesAndPopulates(t *testing.T) {
	src := &fakeSource{quotes: map[string]domain.RawQuote{
		"BTC/USDT": rateQuote("BTC/USDT", 45100, 44900),
	}}
	cache := newFakeCache()
	sym, _ := domain.ParseSymbol("BTC/USDT")

	svc := newRateService(src, cache, 2.5)
	if _, err := svc.EffectivePrice(context.Background(), sym, domain.DirectionBuy); err != nil {
		t.Fatalf("EffectivePrice failed: %v", err)
	}
	if src.fetchCalls != 1 {
		t.Errorf("expected exactly one upstream fetch, got %d", src.fetchCalls)
	}
	if cache.sets != 1 {
		t.Errorf("expected one cache populate, got %d", cache.sets)
	}
	if _, ok := cache.entries[sym.String()]; !ok {
		t.Error("quote not written to cache under requested symbol")
	}
}

func TestEffectivePriceReversePairFallback(t *testing.T) {
	// Only USD/RUB is listed upstream; we ask for RUB/USD.
	src := &fakeSource{quotes: map[string]domain.RawQuote{
		"USD/RUB": rateQuote("USD/RUB", 80, 80),
	}}
	cache := newFakeCache()
	sym, _ := domain.ParseSymbol("RUB/USD")

	svc := newRateService(src, cache, 0)
	priced, err := svc.EffectivePrice(context.Background(), sym, domain.DirectionBuy)
	if err != nil {
		t.Fatalf("EffectivePrice failed: %v", err)
	}
	// Market rate is the reciprocal of the USD/RUB rate.
	want := decimal.NewFromInt(1).DivRound(decimal.NewFromInt(80), 12)
	if !priced.MarketRate.Equal(want) {
		t.Errorf("expected reciprocal rate %s, got %s", want, priced.MarketRate)
	}
	if priced.Symbol != sym {
		t.Errorf("expected symbol %s, got %s", sym, priced.Symbol)
	}
	if _, ok := cache.entries["RUB/USD"]; !ok {
		t.Error("inverted quote should be cached under the requested symbol")
	}
}

func TestEffectivePriceTotalFailure(t *testing.T) {
	src := &fakeSource{quotes: map[string]domain.RawQuote{}}
	cache := newFakeCache()
	sym, _ := domain.ParseSymbol("RUB/USD")

	svc := newRateService(src, cache, 2.5)
	_, err := svc.EffectivePrice(context.Background(), sym, domain.DirectionBuy)
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestEffectivePriceCircuitOpenIsDegraded(t *testing.T) {
	src := &fakeSource{err: domain.ErrCircuitOpen}
	cache := newFakeCache()
	sym, _ := domain.ParseSymbol("BTC/USDT")

	svc := newRateService(src, cache, 2.5)
	_, err := svc.EffectivePrice(context.Background(), sym, domain.DirectionBuy)
	if !errors.Is(err, domain.ErrDegraded) {
		t.Errorf("expected ErrDegraded, got %v", err)
	}
	// The mirror pair must not be attempted through an open circuit.
	if src.fetchCalls != 1 {
		t.Errorf("expected a single rejected fetch, got %d", src.fetchCalls)
	}
}

func TestEffectivePriceCacheErrorFailsOpen(t *testing.T) {
	src := &fakeSource{quotes: map[string]domain.RawQuote{
		"BTC/USDT": rateQuote("BTC/USDT", 45100, 44900),
	}}
	cache := newFakeCache()
	cache.getErr = true
	sym, _ := domain.ParseSymbol("BTC/USDT")

	svc := newRateService(src, cache, 2.5)
	if _, err := svc.EffectivePrice(context.Background(), sym, domain.DirectionBuy); err != nil {
		t.Fatalf("broken cache should fall through to upstream, got %v", err)
	}
	if src.fetchCalls != 1 {
		t.Errorf("expected upstream fetch on cache failure, got %d", src.fetchCalls)
	}
}

func TestEffectivePriceIdempotentWithinTTL(t *testing.T) {
	src := &fakeSource{quotes: map[string]domain.RawQuote{
		"BTC/USDT": rateQuote("BTC/USDT", 45100, 44900),
	}}
	cache := newFakeCache()
	sym, _ := domain.ParseSymbol("BTC/USDT")
	svc := newRateService(src, cache, 2.5)

	first, err := svc.EffectivePrice(context.Background(), sym, domain.DirectionBuy)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	second, err := svc.EffectivePrice(context.Background(), sym, domain.DirectionBuy)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if !first.FinalRate.Equal(second.FinalRate) || !first.MarketRate.Equal(second.MarketRate) {
		t.Errorf("same symbol within TTL should price identically: %s vs %s",
			first.FinalRate, second.FinalRate)
	}
	if src.fetchCalls != 1 {
		t.Errorf("second call should be served from cache, got %d fetches", src.fetchCalls)
	}
}

func TestConvertAmountThroughPipeline(t *testing.T) {
	src := &fakeSource{quotes: map[string]domain.RawQuote{
		"USD/RUB": rateQuote("USD/RUB", 100, 100),
	}}
	cache := newFakeCache()
	sym, _ := domain.ParseSymbol("USD/RUB")
	svc := newRateService(src, cache, 2.5)

	conv, err := svc.ConvertAmount(context.Background(), sym, domain.DirectionBuy, "10")
	if err != nil {
		t.Fatalf("ConvertAmount failed: %v", err)
	}
	// 10 * 100 * 1.025 = 1025.00
	if !conv.OutputAmount.Equal(decimal.NewFromInt(1025)) {
		t.Errorf("expected output 1025, got %s", conv.OutputAmount)
	}

	if _, err := svc.ConvertAmount(context.Background(), sym, domain.DirectionBuy, "nope"); !errors.Is(err, domain.ErrInvalid) {
		t.Errorf("expected ErrInvalid for bad amount, got %v", err)
	}
}

func TestWarmCachePopulatesAllSymbols(t *testing.T) {
	src := &fakeSource{quotes: map[string]domain.RawQuote{
		"BTC/USDT": rateQuote("BTC/USDT", 45100, 44900),
		"ETH/USDT": rateQuote("ETH/USDT", 2410, 2405),
	}}
	cache := newFakeCache()
	svc := newRateService(src, cache, 2.5)

	n, err := svc.WarmCache(context.Background())
	if err != nil {
		t.Fatalf("WarmCache failed: %v", err)
	}
	if n != 2 || len(cache.entries) != 2 {
		t.Errorf("expected 2 cached quotes, got n=%d len=%d", n, len(cache.entries))
	}
}
