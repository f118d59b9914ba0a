package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"ratecore/internal/application/port"
	"ratecore/internal/domain"
)

// RateService composes cache, upstream client and markup engine into the
// single "effective price for pair" operation. It is also the boundary that
// collapses internal failures into the external error vocabulary.
type RateService struct {
	source port.QuoteSource
	cache  port.RateCache
	markup *MarkupEngine
	cfg    domain.MarkupConfig
}

func NewRateService(source port.QuoteSource, cache port.RateCache, markup *MarkupEngine, cfg domain.MarkupConfig) *RateService {
	return &RateService{source: source, cache: cache, markup: markup, cfg: cfg}
}

// EffectivePrice returns the marked-up price for a pair. Cache first, then
// upstream, then the mirror pair inverted. No price is ever fabricated: when
// both directions fail the caller gets a typed error.
func (s *RateService) EffectivePrice(ctx context.Context, sym domain.Symbol, dir domain.Direction) (domain.PricedQuote, error) {
	if cached, ok := s.cache.Get(ctx, sym); ok {
		priced, err := s.markup.Apply(cached, dir, s.cfg)
		if err != nil {
			return domain.PricedQuote{}, externalError(err)
		}
		return priced, nil
	}

	quote, err := s.fetch(ctx, sym)
	if err != nil {
		return domain.PricedQuote{}, externalError(err)
	}

	// Populate only after a complete, validated quote; cancellation between
	// fetch and set never leaves a partial entry behind.
	if err := s.cache.Set(ctx, quote); err != nil {
		log.Warn().Err(err).Str("symbol", sym.String()).Msg("cache populate failed")
	}

	priced, err := s.markup.Apply(quote, dir, s.cfg)
	if err != nil {
		return domain.PricedQuote{}, externalError(err)
	}
	return priced, nil
}

// ConvertAmount prices a concrete amount through the same pipeline.
func (s *RateService) ConvertAmount(ctx context.Context, sym domain.Symbol, dir domain.Direction, amount string) (domain.Conversion, error) {
	parsed, err := ParseAmount(amount)
	if err != nil {
		return domain.Conversion{}, externalError(err)
	}

	quote, ok := s.cache.Get(ctx, sym)
	if !ok {
		quote, err = s.fetch(ctx, sym)
		if err != nil {
			return domain.Conversion{}, externalError(err)
		}
		if err := s.cache.Set(ctx, quote); err != nil {
			log.Warn().Err(err).Str("symbol", sym.String()).Msg("cache populate failed")
		}
	}

	conv, err := s.markup.Convert(quote, dir, s.cfg, parsed)
	if err != nil {
		return domain.Conversion{}, externalError(err)
	}
	return conv, nil
}

// fetch asks upstream for the pair, falling back to the inverted mirror pair
// when the direct one is not listed.
func (s *RateService) fetch(ctx context.Context, sym domain.Symbol) (domain.RawQuote, error) {
	quote, err := s.source.FetchSymbol(ctx, sym)
	if err == nil {
		return quote, quote.Validate()
	}
	if errors.Is(err, domain.ErrCircuitOpen) || domain.IsValidation(err) {
		return domain.RawQuote{}, err
	}

	mirror, merr := s.source.FetchSymbol(ctx, sym.Reversed())
	if merr != nil {
		// Surface the original failure; the mirror attempt was best-effort.
		return domain.RawQuote{}, err
	}
	inverted, ierr := mirror.Inverted()
	if ierr != nil {
		return domain.RawQuote{}, ierr
	}
	log.Debug().Str("symbol", sym.String()).Msg("served via mirror pair inversion")
	return inverted, nil
}

// WarmCache fetches the full rate list once and populates every symbol.
// Returns the number of quotes written.
func (s *RateService) WarmCache(ctx context.Context) (int, error) {
	quotes, err := s.source.FetchAll(ctx)
	if err != nil {
		return 0, externalError(err)
	}
	written := 0
	for _, q := range quotes {
		if err := q.Validate(); err != nil {
			log.Warn().Err(err).Str("symbol", q.Symbol.String()).Msg("skipping invalid upstream quote")
			continue
		}
		if err := s.cache.Set(ctx, q); err != nil {
			log.Warn().Err(err).Str("symbol", q.Symbol.String()).Msg("cache populate failed")
			continue
		}
		written++
	}
	return written, nil
}

// SupportedSymbols lists every pair the upstream currently quotes.
func (s *RateService) SupportedSymbols(ctx context.Context) ([]domain.Symbol, error) {
	quotes, err := s.source.FetchAll(ctx)
	if err != nil {
		return nil, externalError(err)
	}
	symbols := make([]domain.Symbol, 0, len(quotes))
	for _, q := range quotes {
		symbols = append(symbols, q.Symbol)
	}
	return symbols, nil
}

// Health reports whether both the upstream API and the cache store respond.
func (s *RateService) Health(ctx context.Context) bool {
	return s.source.HealthCheck(ctx) && s.cache.Healthy(ctx)
}

// externalError maps internal failures onto the small vocabulary consumers
// are allowed to see: Invalid, Degraded or Unavailable.
func externalError(err error) error {
	switch {
	case domain.IsValidation(err), errors.Is(err, domain.ErrInvalid):
		return fmt.Errorf("%w: %v", domain.ErrInvalid, err)
	case errors.Is(err, domain.ErrCircuitOpen):
		return fmt.Errorf("%w: upstream cooling down", domain.ErrDegraded)
	default:
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
}
