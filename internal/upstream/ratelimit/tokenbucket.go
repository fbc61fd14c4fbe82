package ratelimit

import (
	"context"
	"sync"
	"time"

	"marketstream/internal/interfaces"
	"marketstream/internal/types"
)

// TokenBucket is a token bucket limiter.
// - rate: tokens per second
// - capacity: maximum tokens the bucket can hold (burst)
type TokenBucket struct {
	rate     float64
	capacity float64

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

func NewTokenBucket(tokensPerSecond float64, burst int) *TokenBucket {
	if tokensPerSecond <= 0 {
		tokensPerSecond = 0.0000001
	}
	if burst <= 0 {
		burst = 1
	}
	return &TokenBucket{
		rate:     tokensPerSecond,
		capacity: float64(burst),
		tokens:   float64(burst), // start full to allow an initial burst
		last:     time.Now(),
	}
}

// wait blocks until one token is available or the context is canceled.
func (tb *TokenBucket) wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.last).Seconds()
		if elapsed > 0 {
			tb.tokens += elapsed * tb.rate
			if tb.tokens > tb.capacity {
				tb.tokens = tb.capacity
			}
			tb.last = now
		}
		if tb.tokens >= 1 {
			tb.tokens -= 1
			tb.mu.Unlock()
			return nil
		}
		deficit := 1 - tb.tokens
		tb.mu.Unlock()

		waitDur := time.Duration(deficit / tb.rate * float64(time.Second))
		if waitDur <= 0 {
			waitDur = time.Millisecond
		}
		timer := time.NewTimer(waitDur)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Fetcher wraps a QuoteFetcher and gates every upstream call through a
// shared token bucket, keeping aggregate request volume under the
// provider's quota regardless of how many pollers are live.
type Fetcher struct {
	F  interfaces.QuoteFetcher
	TB *TokenBucket
}

var _ interfaces.QuoteFetcher = (*Fetcher)(nil)

func Wrap(f interfaces.QuoteFetcher, tokensPerSecond float64, burst int) *Fetcher {
	return &Fetcher{F: f, TB: NewTokenBucket(tokensPerSecond, burst)}
}

func (r *Fetcher) FetchQuote(ctx context.Context, symbol string) (types.RawQuote, error) {
	if err := r.TB.wait(ctx); err != nil {
		return types.RawQuote{}, err
	}
	return r.F.FetchQuote(ctx, symbol)
}

func (r *Fetcher) FetchPrevClose(ctx context.Context, symbol string) (types.RawAggregate, error) {
	if err := r.TB.wait(ctx); err != nil {
		return types.RawAggregate{}, err
	}
	return r.F.FetchPrevClose(ctx, symbol)
}

func (r *Fetcher) FetchTrending(ctx context.Context, limit int) ([]string, error) {
	if err := r.TB.wait(ctx); err != nil {
		return nil, err
	}
	return r.F.FetchTrending(ctx, limit)
}
