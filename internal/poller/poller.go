package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"marketstream/internal/interfaces"
	"marketstream/internal/logger"
	"marketstream/internal/metrics"
	"marketstream/internal/normalize"
	"marketstream/internal/types"
	"marketstream/internal/upstream"
)

// Config controls the cadence of a symbol poller.
type Config struct {
	// Interval between polls while healthy.
	Interval time.Duration
	// BackoffBase is the first wait after a transient failure; each further
	// failure doubles it up to BackoffCeiling.
	BackoffBase    time.Duration
	BackoffCeiling time.Duration
}

// Poller refreshes a single symbol on its own schedule and publishes
// normalized quotes to the sink. One goroutine per poller; a slow symbol
// never delays another.
type Poller struct {
	symbol  string
	fetcher interfaces.QuoteFetcher
	sink    interfaces.QuoteSink
	cfg     Config

	// fatal is invoked once when the upstream rejects the credential.
	fatal func(error)

	mu        sync.Mutex
	lastQuote *types.Quote
	failures  int

	// prevClose is cached per UTC trading date: it cannot change intraday,
	// so the aggregate endpoint is hit at most once per symbol per day.
	prevClose     types.RawAggregate
	prevFetchedOn string

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func New(symbol string, fetcher interfaces.QuoteFetcher, sink interfaces.QuoteSink, cfg Config, fatal func(error)) *Poller {
	if fatal == nil {
		fatal = func(error) {}
	}
	return &Poller{
		symbol:  symbol,
		fetcher: fetcher,
		sink:    sink,
		cfg:     cfg,
		fatal:   fatal,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the poll loop. The context bounds the whole lifetime;
// Stop ends the loop cooperatively after any in-flight cycle completes.
func (p *Poller) Start(ctx context.Context) {
	go p.run(ctx)
}

// Stop signals the loop to exit. It does not cancel an in-flight upstream
// call; that call is bounded by the fetcher's own timeout and its result is
// discarded. Safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// Done is closed once the loop has fully exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// LastQuote returns the most recently published quote, if any.
func (p *Poller) LastQuote() (types.Quote, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastQuote == nil {
		return types.Quote{}, false
	}
	return *p.lastQuote, true
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	metrics.ActivePollers.Inc()
	defer metrics.ActivePollers.Dec()

	logger.Info(ctx, "Poller started", "symbol", p.symbol)
	defer logger.Info(ctx, "Poller stopped", "symbol", p.symbol)

	wait := time.Duration(0) // poll immediately on start
	for {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		stopped, err := p.cycle(ctx)
		if stopped {
			return
		}
		wait = p.nextWait(ctx, err)
	}
}

// cycle runs one poll. Returns stopped=true when the poller must terminate
// (unauthorized credential or canceled context).
func (p *Poller) cycle(ctx context.Context) (bool, error) {
	raw, agg, err := p.fetch(ctx)
	if err != nil {
		if errors.Is(err, upstream.ErrUnauthorized) {
			logger.ErrorWithErr(ctx, "Upstream rejected credential, stopping poller", err, "symbol", p.symbol)
			metrics.UpstreamErrors.WithLabelValues("unauthorized").Inc()
			p.fatal(err)
			return true, nil
		}
		if ctx.Err() != nil {
			return true, nil
		}
		metrics.UpstreamErrors.WithLabelValues(classify(err)).Inc()
		return false, err
	}

	q, err := normalize.Normalize(raw, agg)
	if err != nil {
		// Incomplete upstream records are absorbed here; nothing reaches
		// the hub or any session.
		logger.Warn(ctx, "Dropping unnormalizable quote", "symbol", p.symbol, "error", err)
		return false, err
	}

	p.publish(ctx, q)
	return false, nil
}

// fetch retrieves the quote and the previous-close bar concurrently. The
// bar comes from the per-day cache when still fresh.
func (p *Poller) fetch(ctx context.Context) (types.RawQuote, types.RawAggregate, error) {
	today := time.Now().UTC().Format("2006-01-02")

	p.mu.Lock()
	agg, fetchedOn := p.prevClose, p.prevFetchedOn
	p.mu.Unlock()

	var raw types.RawQuote
	g, gctx := errgroup.Group{}, ctx
	g.Go(func() error {
		var err error
		raw, err = p.fetcher.FetchQuote(gctx, p.symbol)
		return err
	})
	if fetchedOn != today {
		g.Go(func() error {
			fresh, err := p.fetcher.FetchPrevClose(gctx, p.symbol)
			if err != nil {
				return err
			}
			// A provider with no bar yet returns a zero-value aggregate.
			// Caching it would pin the symbol on an unusable bar for the
			// rest of the day; leave the cache stale so the next cycle
			// refetches.
			if !fresh.Day.IsZero() {
				p.mu.Lock()
				p.prevClose, p.prevFetchedOn = fresh, today
				p.mu.Unlock()
			}
			agg = fresh
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.RawQuote{}, types.RawAggregate{}, err
	}
	return raw, agg, nil
}

// publish stores and fans out the quote unless an equal or newer one has
// already been published for this symbol.
func (p *Poller) publish(ctx context.Context, q types.Quote) {
	p.mu.Lock()
	if p.lastQuote != nil && !q.ObservedAt.After(p.lastQuote.ObservedAt) {
		p.mu.Unlock()
		metrics.QuotesDroppedStale.Inc()
		logger.Debug(ctx, "Dropping stale quote", "symbol", p.symbol, "observed_at", q.ObservedAt)
		return
	}
	p.lastQuote = &q
	p.failures = 0
	p.mu.Unlock()

	p.sink.Publish(q)
	metrics.QuotesPublished.WithLabelValues(p.symbol).Inc()
}

// nextWait returns the delay before the next cycle: the steady interval
// after a success, or a doubling backoff after a failure.
func (p *Poller) nextWait(ctx context.Context, err error) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err == nil {
		p.failures = 0
		return p.cfg.Interval
	}

	p.failures++
	backoff := p.cfg.BackoffBase << (p.failures - 1)
	if backoff > p.cfg.BackoffCeiling || backoff <= 0 {
		backoff = p.cfg.BackoffCeiling
	}
	logger.Warn(ctx, "Poll cycle failed, backing off",
		"symbol", p.symbol,
		"consecutive_failures", p.failures,
		"backoff", backoff,
		"error", err,
	)
	return backoff
}

func classify(err error) string {
	switch {
	case errors.Is(err, upstream.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, upstream.ErrTimeout):
		return "timeout"
	case errors.Is(err, upstream.ErrUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}
