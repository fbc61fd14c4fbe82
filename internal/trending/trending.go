package trending

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"marketstream/internal/interfaces"
	"marketstream/internal/logger"
	"marketstream/internal/metrics"
	"marketstream/internal/types"
)

// Cache refreshes the trending symbol set on a coarse interval, decoupled
// from per-symbol polling. Readers always see the last successful set; a
// failed refresh keeps the previous one (stale-but-available over empty).
type Cache struct {
	fetcher  interfaces.QuoteFetcher
	limit    int
	interval time.Duration

	// current is replaced atomically on refresh, never mutated in place.
	current atomic.Pointer[types.TrendingSet]

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

var _ interfaces.TrendingProvider = (*Cache)(nil)

// New builds a cache seeded with a default symbol set, served until the
// first successful refresh.
func New(fetcher interfaces.QuoteFetcher, defaults []string, limit int, interval time.Duration) *Cache {
	c := &Cache{
		fetcher:  fetcher,
		limit:    limit,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	seed := &types.TrendingSet{Symbols: append([]string(nil), defaults...)}
	c.current.Store(seed)
	return c
}

// Start launches the refresher. The first refresh happens immediately.
func (c *Cache) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) Done() <-chan struct{} { return c.done }

// Current returns the last successfully refreshed set. Never triggers a
// refresh.
func (c *Cache) Current() types.TrendingSet {
	return *c.current.Load()
}

func (c *Cache) run(ctx context.Context) {
	defer close(c.done)

	c.refresh(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.refresh(ctx)
		}
	}
}

func (c *Cache) refresh(ctx context.Context) {
	symbols, err := c.fetcher.FetchTrending(ctx, c.limit)
	if err != nil {
		// Readers keep the previous set; this is logged, never surfaced
		// per reader.
		metrics.TrendingRefreshFailures.Inc()
		logger.Warn(ctx, "Trending refresh failed, keeping previous set", "error", err)
		return
	}
	if len(symbols) == 0 {
		logger.Warn(ctx, "Trending refresh returned no symbols, keeping previous set")
		return
	}

	c.current.Store(&types.TrendingSet{
		Symbols:     symbols,
		RefreshedAt: time.Now().UTC(),
	})
	logger.Debug(ctx, "Trending set refreshed", "count", len(symbols))
}
