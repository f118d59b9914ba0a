package domain

import "github.com/shopspring/decimal"

// PairMarkup is the per-pair pricing configuration.
type PairMarkup struct {
	Percent   decimal.Decimal
	MinAmount decimal.Decimal // zero means no lower bound
	MaxAmount decimal.Decimal // zero means no upper bound
	Disabled  bool
}

// MarkupConfig maps symbols to markup percentages with a global default.
// Built once at startup and treated as immutable afterwards.
type MarkupConfig struct {
	DefaultPercent decimal.Decimal
	Pairs          map[Symbol]PairMarkup
}

// PercentFor resolves the markup percentage for a symbol: exact pair first,
// then the reversed pair (markup configured for A/B applies to B/A unless
// overridden), then the global default.
func (c MarkupConfig) PercentFor(sym Symbol) decimal.Decimal {
	if p, ok := c.Pairs[sym]; ok {
		return p.Percent
	}
	if p, ok := c.Pairs[sym.Reversed()]; ok {
		return p.Percent
	}
	return c.DefaultPercent
}

// PairFor returns the pair configuration, trying the reversed pair as a
// fallback the same way PercentFor does.
func (c MarkupConfig) PairFor(sym Symbol) (PairMarkup, bool) {
	if p, ok := c.Pairs[sym]; ok {
		return p, true
	}
	p, ok := c.Pairs[sym.Reversed()]
	return p, ok
}
