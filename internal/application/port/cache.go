package port

import (
	"context"

	"ratecore/internal/domain"
)

// RateCache shields the upstream API from repeated fetches. Implementations
// fail open: a broken store reads as a miss, never as a request failure.
type RateCache interface {
	Get(ctx context.Context, sym domain.Symbol) (domain.RawQuote, bool)
	Set(ctx context.Context, quote domain.RawQuote) error
	Invalidate(ctx context.Context, sym domain.Symbol) error
	InvalidateCategory(ctx context.Context, category string) (int, error)
	Healthy(ctx context.Context) bool
}
