package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction of a quote from the customer's perspective.
type Direction int

const (
	DirectionBuy Direction = iota
	DirectionSell
)

func (d Direction) String() string {
	switch d {
	case DirectionBuy:
		return "buy"
	case DirectionSell:
		return "sell"
	default:
		return "unknown"
	}
}

// ParseDirection accepts "buy" or "sell" in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return DirectionBuy, nil
	case "sell":
		return DirectionSell, nil
	default:
		return 0, NewValidationError("direction", "must be buy or sell")
	}
}

// RawQuote is a single market quote as delivered by the upstream API.
// Never mutated after construction; inversion produces a fresh value.
type RawQuote struct {
	Symbol    Symbol
	Ask       decimal.Decimal
	Bid       decimal.Decimal
	Last      decimal.Decimal
	FetchedAt time.Time
}

// Validate checks the quote invariant ask >= bid >= 0. A violation marks the
// quote invalid rather than crashing anything downstream.
func (q RawQuote) Validate() error {
	if q.Symbol.IsZero() {
		return NewValidationError("symbol", "empty symbol")
	}
	if q.Bid.IsNegative() || q.Ask.IsNegative() || q.Last.IsNegative() {
		return NewValidationError("price", "negative price in quote for "+q.Symbol.String())
	}
	if q.Ask.LessThan(q.Bid) {
		return NewValidationError("spread", "ask below bid for "+q.Symbol.String())
	}
	return nil
}

// Inverted returns the quote for the mirror pair: ask and bid swap roles and
// each becomes the reciprocal of the other. The result is re-validated, an
// inverted spread after reciprocation is rejected rather than propagated.
func (q RawQuote) Inverted() (RawQuote, error) {
	if !q.Ask.IsPositive() || !q.Bid.IsPositive() {
		return RawQuote{}, NewValidationError("price", "cannot invert non-positive quote for "+q.Symbol.String())
	}
	one := decimal.NewFromInt(1)
	inv := RawQuote{
		Symbol:    q.Symbol.Reversed(),
		Ask:       one.DivRound(q.Bid, invertedScale),
		Bid:       one.DivRound(q.Ask, invertedScale),
		FetchedAt: q.FetchedAt,
	}
	if q.Last.IsPositive() {
		inv.Last = one.DivRound(q.Last, invertedScale)
	}
	if err := inv.Validate(); err != nil {
		return RawQuote{}, err
	}
	return inv, nil
}

// invertedScale bounds reciprocal precision; more than crypto output
// precision so rounding to currency scale happens only once, in the engine.
const invertedScale = 12
