package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricedQuote is a market rate with the house markup applied. Created fresh
// per request; this is the only quote shape consumers ever see.
type PricedQuote struct {
	Symbol        Symbol
	Direction     Direction
	MarketRate    decimal.Decimal
	FinalRate     decimal.Decimal
	MarkupPercent decimal.Decimal
	MarkupAmount  decimal.Decimal
	ComputedAt    time.Time
}

// Conversion is a priced quote applied to a concrete amount.
type Conversion struct {
	PricedQuote
	InputAmount  decimal.Decimal
	OutputAmount decimal.Decimal
	MarkupTotal  decimal.Decimal
}
