package upstream

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"ratecore/internal/domain"
)

// Wire types for GET /open/market/rates. Prices decode as json.Number so
// they reach decimal.Decimal without passing through float64.
type apiRate struct {
	Symbol   string      `json:"symbol"`
	AskPrice json.Number `json:"askPrice"`
	BidPrice json.Number `json:"bidPrice"`
	Close    json.Number `json:"close"`
}

type apiResponse struct {
	Data      []apiRate `json:"data"`
	Code      int       `json:"code"`
	Message   string    `json:"message"`
	IsWorking int       `json:"isWorking"`
}

// ok reports whether the body signals a usable response. Anything else is a
// server-class failure regardless of HTTP status.
func (r *apiResponse) ok() bool {
	return r.Code == 0 && r.IsWorking == 1
}

// toDomain converts the payload, dropping rows that fail parsing or the
// quote invariant. An invalid row is logged and skipped, never fatal.
func (r *apiResponse) toDomain(now time.Time) []domain.RawQuote {
	quotes := make([]domain.RawQuote, 0, len(r.Data))
	for _, row := range r.Data {
		q, err := row.toQuote(now)
		if err != nil {
			log.Warn().Err(err).Str("symbol", row.Symbol).Msg("dropping invalid upstream rate")
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes
}

func (row apiRate) toQuote(now time.Time) (domain.RawQuote, error) {
	sym, err := domain.ParseSymbol(row.Symbol)
	if err != nil {
		return domain.RawQuote{}, err
	}
	ask, err := parsePrice(row.AskPrice, "askPrice")
	if err != nil {
		return domain.RawQuote{}, err
	}
	bid, err := parsePrice(row.BidPrice, "bidPrice")
	if err != nil {
		return domain.RawQuote{}, err
	}
	last, err := parsePrice(row.Close, "close")
	if err != nil {
		return domain.RawQuote{}, err
	}
	q := domain.RawQuote{Symbol: sym, Ask: ask, Bid: bid, Last: last, FetchedAt: now}
	if err := q.Validate(); err != nil {
		return domain.RawQuote{}, err
	}
	return q, nil
}

func parsePrice(n json.Number, field string) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Decimal{}, domain.NewValidationError(field, "unparseable price "+n.String())
	}
	return d, nil
}
