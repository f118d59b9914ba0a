package port

import (
	"context"

	"ratecore/internal/domain"
)

// QuoteSink receives priced quotes for downstream consumption (conversation
// layer, operator notifications). Delivery guarantees are the sink's problem.
type QuoteSink interface {
	Publish(ctx context.Context, quote domain.PricedQuote) error
}
