package console

import (
	"context"
	"fmt"

	"ratecore/internal/application/port"
	"ratecore/internal/domain"
)

type Sink struct{}

func NewSink() port.QuoteSink { return &Sink{} }

func (s *Sink) Publish(_ context.Context, q domain.PricedQuote) error {
	_, err := fmt.Printf("%s %s %s market=%s final=%s markup=%s%%\n",
		q.ComputedAt.Format("2006-01-02 15:04:05"),
		q.Symbol, q.Direction,
		q.MarketRate, q.FinalRate, q.MarkupPercent)
	return err
}
