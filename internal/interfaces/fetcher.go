package interfaces

import (
	"context"

	"marketstream/internal/types"
)

type QuoteFetcher interface {
	FetchQuote(ctx context.Context, symbol string) (types.RawQuote, error)
	FetchPrevClose(ctx context.Context, symbol string) (types.RawAggregate, error)
	FetchTrending(ctx context.Context, limit int) ([]string, error)
}
