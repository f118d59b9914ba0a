package domain

import (
	"fmt"
	"strings"
)

// Symbol is an ordered currency pair: Base priced in Quote.
type Symbol struct {
	Base  string
	Quote string
}

// NewSymbol builds a Symbol from two currency codes.
func NewSymbol(base, quote string) (Symbol, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	quote = strings.ToUpper(strings.TrimSpace(quote))
	if base == "" || quote == "" {
		return Symbol{}, NewValidationError("symbol", "base and quote must not be empty")
	}
	if base == quote {
		return Symbol{}, NewValidationError("symbol", "base and quote must differ")
	}
	return Symbol{Base: base, Quote: quote}, nil
}

// ParseSymbol parses the "BASE/QUOTE" form used by the upstream API.
func ParseSymbol(s string) (Symbol, error) {
	base, quote, ok := strings.Cut(s, "/")
	if !ok {
		return Symbol{}, NewValidationError("symbol", fmt.Sprintf("%q is not in BASE/QUOTE form", s))
	}
	return NewSymbol(base, quote)
}

// Reversed returns the mirror pair (Quote priced in Base).
func (s Symbol) Reversed() Symbol {
	return Symbol{Base: s.Quote, Quote: s.Base}
}

func (s Symbol) String() string {
	return s.Base + "/" + s.Quote
}

func (s Symbol) IsZero() bool {
	return s.Base == "" && s.Quote == ""
}
