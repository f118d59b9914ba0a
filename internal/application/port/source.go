package port

import (
	"context"

	"ratecore/internal/domain"
)

// QuoteSource is the upstream pricing API as seen by the application layer.
type QuoteSource interface {
	FetchAll(ctx context.Context) ([]domain.RawQuote, error)
	FetchSymbol(ctx context.Context, sym domain.Symbol) (domain.RawQuote, error)
	HealthCheck(ctx context.Context) bool
	Metrics() domain.RequestMetrics
}
