package service

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ratecore/internal/domain"
)

// fiat currencies round to 2 decimal places; everything else is treated as a
// crypto asset and keeps up to 8.
var fiatCurrencies = map[string]struct{}{
	"USD": {}, "EUR": {}, "GBP": {}, "JPY": {}, "CHF": {}, "CAD": {},
	"AUD": {}, "NZD": {}, "SEK": {}, "NOK": {}, "DKK": {}, "PLN": {},
	"CZK": {}, "HUF": {}, "RUB": {}, "CNY": {}, "KRW": {}, "INR": {},
	"BRL": {}, "MXN": {}, "ZAR": {}, "TRY": {}, "SGD": {}, "HKD": {},
	"THB": {}, "AED": {}, "KZT": {}, "UAH": {},
}

const (
	fiatScale   int32 = 2
	cryptoScale int32 = 8
)

func scaleFor(currency string) int32 {
	if _, ok := fiatCurrencies[strings.ToUpper(currency)]; ok {
		return fiatScale
	}
	return cryptoScale
}

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// MarkupEngine turns raw market quotes into customer-facing prices using
// decimal arithmetic throughout.
type MarkupEngine struct{}

func NewMarkupEngine() *MarkupEngine { return &MarkupEngine{} }

// Apply prices a raw quote for the given direction. Buys price off the ask,
// sells off the bid; a missing side falls back to the last trade price.
func (e *MarkupEngine) Apply(q domain.RawQuote, dir domain.Direction, cfg domain.MarkupConfig) (domain.PricedQuote, error) {
	if err := q.Validate(); err != nil {
		return domain.PricedQuote{}, err
	}

	market := q.Ask
	if dir == domain.DirectionSell {
		market = q.Bid
	}
	if !market.IsPositive() {
		market = q.Last
	}
	if !market.IsPositive() {
		return domain.PricedQuote{}, domain.NewValidationError("price", "no positive rate for "+q.Symbol.String())
	}

	pct := cfg.PercentFor(q.Symbol)
	if pct.IsNegative() {
		return domain.PricedQuote{}, domain.NewValidationError("markup", "negative markup for "+q.Symbol.String())
	}

	final := market.Mul(one.Add(pct.Div(hundred)))
	final = final.Round(scaleFor(q.Symbol.Quote))

	return domain.PricedQuote{
		Symbol:        q.Symbol,
		Direction:     dir,
		MarketRate:    market,
		FinalRate:     final,
		MarkupPercent: pct,
		MarkupAmount:  final.Sub(market),
		ComputedAt:    time.Now(),
	}, nil
}

// Convert prices a concrete amount of the base currency, enforcing the
// per-pair amount limits when configured.
func (e *MarkupEngine) Convert(q domain.RawQuote, dir domain.Direction, cfg domain.MarkupConfig, amount decimal.Decimal) (domain.Conversion, error) {
	if !amount.IsPositive() {
		return domain.Conversion{}, domain.NewValidationError("amount", "amount must be positive")
	}

	if pair, ok := cfg.PairFor(q.Symbol); ok {
		if pair.Disabled {
			return domain.Conversion{}, domain.NewValidationError("pair", q.Symbol.String()+" is disabled")
		}
		if pair.MinAmount.IsPositive() && amount.LessThan(pair.MinAmount) {
			return domain.Conversion{}, domain.NewValidationError("amount", "below minimum for "+q.Symbol.String())
		}
		if pair.MaxAmount.IsPositive() && amount.GreaterThan(pair.MaxAmount) {
			return domain.Conversion{}, domain.NewValidationError("amount", "above maximum for "+q.Symbol.String())
		}
	}

	priced, err := e.Apply(q, dir, cfg)
	if err != nil {
		return domain.Conversion{}, err
	}

	return domain.Conversion{
		PricedQuote:  priced,
		InputAmount:  amount,
		OutputAmount: amount.Mul(priced.FinalRate).Round(scaleFor(q.Symbol.Quote)),
		MarkupTotal:  amount.Mul(priced.MarkupAmount).Round(scaleFor(q.Symbol.Quote)),
	}, nil
}

// ParseAmount parses a user-supplied amount string. Thousands separators and
// spaces are tolerated; precision is capped at 8 decimal places.
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer(",", "", " ", "").Replace(strings.TrimSpace(s))
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, domain.NewValidationError("amount", "not a number: "+s)
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, domain.NewValidationError("amount", "amount must be positive")
	}
	if amount.Exponent() < -8 {
		return decimal.Decimal{}, domain.NewValidationError("amount", "too many decimal places (max 8)")
	}
	return amount, nil
}
