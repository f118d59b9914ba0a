package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"ratecore/internal/domain"
	"ratecore/internal/infrastructure/metrics"
)

// KV is the minimal key-value surface the cache needs from its store. The
// Redis adapter implements it; tests use an in-memory fake. Connection
// pooling and reconnection are the store's problem.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int, error)
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)
}

const categoryRates = "rates"

// Config for the tiered rate cache.
type Config struct {
	Prefix     string        // key namespace, e.g. "ratecore"
	RateTTL    time.Duration // base TTL for a quote entry
	HotTTLCeil time.Duration // upper bound for frequency-extended TTLs
	HotHits    uint64        // hits per key per TTL step
}

func (c *Config) applyDefaults() {
	if c.Prefix == "" {
		c.Prefix = "ratecore"
	}
	if c.RateTTL <= 0 {
		c.RateTTL = 300 * time.Second
	}
	if c.HotTTLCeil < c.RateTTL {
		c.HotTTLCeil = 2 * c.RateTTL
	}
	if c.HotHits == 0 {
		c.HotHits = 10
	}
}

// Stats is a snapshot of the cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Errors    uint64
}

// RateCache is the tiered quote cache between the upstream client and all
// callers. Entries are immutable: a refresh replaces the value wholesale,
// last write wins. Store failures fail open as misses.
type RateCache struct {
	kv   KV
	cfg  Config
	prom *metrics.Metrics

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	errors    atomic.Uint64

	keyHits sync.Map // key -> *atomic.Uint64, drives the hot-TTL heuristic
}

func New(kv KV, cfg Config, prom *metrics.Metrics) *RateCache {
	cfg.applyDefaults()
	return &RateCache{kv: kv, cfg: cfg, prom: prom}
}

// entry is the stored payload. Prices travel as strings so decimal values
// round-trip without float conversion. TTLSec rides along for the defensive
// staleness check on read.
type entry struct {
	Symbol    string `json:"symbol"`
	Ask       string `json:"ask"`
	Bid       string `json:"bid"`
	Last      string `json:"last"`
	FetchedAt int64  `json:"fetched_at_ms"`
	TTLSec    int64  `json:"ttl_sec"`
}

// Get returns the cached quote for a symbol. Expired and undecodable
// entries behave as misses; store errors fail open as misses too.
func (c *RateCache) Get(ctx context.Context, sym domain.Symbol) (domain.RawQuote, bool) {
	key := c.rateKey(sym)
	raw, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		c.errors.Add(1)
		c.prom.IncCacheOp("get", "error")
		log.Warn().Err(err).Str("key", key).Msg("cache read failed, treating as miss")
		return domain.RawQuote{}, false
	}
	if !ok {
		c.misses.Add(1)
		c.prom.IncCacheOp("get", "miss")
		return domain.RawQuote{}, false
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		c.errors.Add(1)
		c.prom.IncCacheOp("get", "error")
		return domain.RawQuote{}, false
	}
	quote, err := e.toQuote()
	if err != nil {
		c.errors.Add(1)
		c.prom.IncCacheOp("get", "error")
		return domain.RawQuote{}, false
	}

	// The store enforces expiry; this guards against a store with no TTL
	// support or a clock-skewed entry. Stale data is never served.
	if e.TTLSec > 0 && time.Since(quote.FetchedAt) > time.Duration(e.TTLSec)*time.Second {
		c.misses.Add(1)
		c.prom.IncCacheOp("get", "stale")
		return domain.RawQuote{}, false
	}

	c.hits.Add(1)
	c.prom.IncCacheOp("get", "hit")
	c.bumpKey(key)
	return quote, true
}

// Set writes a quote under its symbol key. Idempotent last-write-wins; all
// writers derive from the same upstream, so a fresher value is always
// correct. The TTL grows with the key's hit frequency up to the ceiling.
func (c *RateCache) Set(ctx context.Context, quote domain.RawQuote) error {
	if err := quote.Validate(); err != nil {
		return err
	}
	ttl := c.ttlFor(c.rateKey(quote.Symbol))
	e := entry{
		Symbol:    quote.Symbol.String(),
		Ask:       quote.Ask.String(),
		Bid:       quote.Bid.String(),
		Last:      quote.Last.String(),
		FetchedAt: quote.FetchedAt.UnixMilli(),
		TTLSec:    int64(ttl / time.Second),
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := c.kv.Set(ctx, c.rateKey(quote.Symbol), string(payload), ttl); err != nil {
		c.errors.Add(1)
		c.prom.IncCacheOp("set", "error")
		return fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	c.prom.IncCacheOp("set", "ok")
	return nil
}

// Invalidate drops one symbol's entry.
func (c *RateCache) Invalidate(ctx context.Context, sym domain.Symbol) error {
	key := c.rateKey(sym)
	n, err := c.kv.Del(ctx, key)
	if err != nil {
		c.errors.Add(1)
		c.prom.IncCacheOp("del", "error")
		return fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	c.evictions.Add(uint64(n))
	c.keyHits.Delete(key)
	c.prom.IncCacheOp("del", "ok")
	return nil
}

// InvalidateCategory drops every key under a category prefix in one scan,
// e.g. all rate entries after a markup reconfiguration.
func (c *RateCache) InvalidateCategory(ctx context.Context, category string) (int, error) {
	prefix := c.cfg.Prefix + ":" + category + ":"
	keys, err := c.kv.ScanPrefix(ctx, prefix)
	if err != nil {
		c.errors.Add(1)
		return 0, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.kv.Del(ctx, keys...)
	if err != nil {
		c.errors.Add(1)
		return 0, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	for _, k := range keys {
		c.keyHits.Delete(k)
	}
	c.evictions.Add(uint64(n))
	log.Info().Int("keys", n).Str("category", category).Msg("cache category invalidated")
	return n, nil
}

// Healthy probes the store with a short-lived write/read round trip.
func (c *RateCache) Healthy(ctx context.Context) bool {
	key := c.cfg.Prefix + ":health:probe"
	val := strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := c.kv.Set(ctx, key, val, 10*time.Second); err != nil {
		return false
	}
	got, ok, err := c.kv.Get(ctx, key)
	return err == nil && ok && got == val
}

// Stats returns a snapshot of the counters.
func (c *RateCache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Errors:    c.errors.Load(),
	}
}

func (c *RateCache) rateKey(sym domain.Symbol) string {
	return fmt.Sprintf("%s:%s:%s:%s", c.cfg.Prefix, categoryRates, sym.Base, sym.Quote)
}

func (c *RateCache) bumpKey(key string) {
	v, _ := c.keyHits.LoadOrStore(key, new(atomic.Uint64))
	v.(*atomic.Uint64).Add(1)
}

// ttlFor extends the base TTL by one step per HotHits recorded hits, capped
// at the ceiling. Popular symbols stay warm longer, trading staleness for
// reduced upstream load.
func (c *RateCache) ttlFor(key string) time.Duration {
	v, ok := c.keyHits.Load(key)
	if !ok {
		return c.cfg.RateTTL
	}
	steps := v.(*atomic.Uint64).Load() / c.cfg.HotHits
	ttl := c.cfg.RateTTL * time.Duration(steps+1)
	if ttl > c.cfg.HotTTLCeil {
		return c.cfg.HotTTLCeil
	}
	return ttl
}

func (e entry) toQuote() (domain.RawQuote, error) {
	sym, err := domain.ParseSymbol(e.Symbol)
	if err != nil {
		return domain.RawQuote{}, err
	}
	ask, err := decimal.NewFromString(e.Ask)
	if err != nil {
		return domain.RawQuote{}, err
	}
	bid, err := decimal.NewFromString(e.Bid)
	if err != nil {
		return domain.RawQuote{}, err
	}
	last, err := decimal.NewFromString(e.Last)
	if err != nil {
		return domain.RawQuote{}, err
	}
	return domain.RawQuote{
		Symbol:    sym,
		Ask:       ask,
		Bid:       bid,
		Last:      last,
		FetchedAt: time.UnixMilli(e.FetchedAt),
	}, nil
}
