package upstreamobs

import (
	"context"

	"marketstream/internal/interfaces"
	"marketstream/internal/logger"
	"marketstream/internal/trace"
	"marketstream/internal/types"
)

// observableFetcher wraps a QuoteFetcher with observability (logging & tracing)
type observableFetcher struct {
	fetcher interfaces.QuoteFetcher
}

// Compile-time interface check
var _ interfaces.QuoteFetcher = (*observableFetcher)(nil)

// Wrap wraps a fetcher with observability middleware
func Wrap(fetcher interfaces.QuoteFetcher) interfaces.QuoteFetcher {
	return &observableFetcher{fetcher: fetcher}
}

func (of *observableFetcher) FetchQuote(ctx context.Context, symbol string) (types.RawQuote, error) {
	ctx, span := trace.StartSpan(ctx, "upstream.FetchQuote")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching quote", "symbol", symbol)

	raw, err := of.fetcher.FetchQuote(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch quote", err, "symbol", symbol)
		return types.RawQuote{}, err
	}

	logger.DebugSkip(ctx, 1, "Quote fetched",
		"symbol", symbol,
		"bid", raw.BidPrice,
		"ask", raw.AskPrice,
		"observed_at", raw.ObservedAt,
	)
	return raw, nil
}

func (of *observableFetcher) FetchPrevClose(ctx context.Context, symbol string) (types.RawAggregate, error) {
	ctx, span := trace.StartSpan(ctx, "upstream.FetchPrevClose")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching previous close", "symbol", symbol)

	agg, err := of.fetcher.FetchPrevClose(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch previous close", err, "symbol", symbol)
		return types.RawAggregate{}, err
	}

	logger.DebugSkip(ctx, 1, "Previous close fetched", "symbol", symbol, "close", agg.Close, "day", agg.Day)
	return agg, nil
}

func (of *observableFetcher) FetchTrending(ctx context.Context, limit int) ([]string, error) {
	ctx, span := trace.StartSpan(ctx, "upstream.FetchTrending")
	defer span.End()

	symbols, err := of.fetcher.FetchTrending(ctx, limit)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch trending symbols", err, "limit", limit)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Trending symbols fetched", "count", len(symbols))
	return symbols, nil
}
