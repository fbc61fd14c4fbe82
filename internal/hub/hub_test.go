package hub_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketstream/internal/hub"
	"marketstream/internal/types"
)

type fakePoller struct {
	symbol  string
	started bool
	stopped bool
	done    chan struct{}
	last    *types.Quote
	mu      sync.Mutex
}

func (p *fakePoller) Start(ctx context.Context) {
	p.mu.Lock()
	p.started = true
	p.mu.Unlock()
}

func (p *fakePoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.stopped = true
		close(p.done)
	}
}

func (p *fakePoller) Done() <-chan struct{} { return p.done }

func (p *fakePoller) LastQuote() (types.Quote, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return types.Quote{}, false
	}
	return *p.last, true
}

func (p *fakePoller) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

type fakeSession struct {
	id string

	mu       sync.Mutex
	received []types.Quote
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Deliver(q types.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, q)
}

func (s *fakeSession) quotes() []types.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Quote(nil), s.received...)
}

type pollerRecorder struct {
	mu      sync.Mutex
	created []*fakePoller
}

func (r *pollerRecorder) factory(symbol string) hub.SymbolPoller {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := &fakePoller{symbol: symbol, done: make(chan struct{})}
	r.created = append(r.created, p)
	return p
}

func (r *pollerRecorder) pollers() []*fakePoller {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*fakePoller(nil), r.created...)
}

func quote(symbol string, price float64) types.Quote {
	return types.Quote{
		Symbol:     symbol,
		Price:      price,
		ObservedAt: time.Now().UTC(),
	}
}

func TestSinglePollerPerSymbol(t *testing.T) {
	rec := &pollerRecorder{}
	h := hub.New(rec.factory)
	ctx := context.Background()

	a := &fakeSession{id: "session-a"}
	b := &fakeSession{id: "session-b"}

	h.Subscribe(ctx, a, "AAPL")
	h.Subscribe(ctx, b, "AAPL")
	h.Subscribe(ctx, a, "aapl") // idempotent, case-insensitive

	require.Len(t, rec.pollers(), 1, "two subscribers must share one poller")
	require.True(t, rec.pollers()[0].started)
}

func TestFanOutToAllSubscribers(t *testing.T) {
	rec := &pollerRecorder{}
	h := hub.New(rec.factory)
	ctx := context.Background()

	a := &fakeSession{id: "session-a"}
	b := &fakeSession{id: "session-b"}
	c := &fakeSession{id: "session-c"}

	h.Subscribe(ctx, a, "AAPL")
	h.Subscribe(ctx, b, "AAPL")
	h.Subscribe(ctx, c, "MSFT")

	q := quote("AAPL", 150.25)
	h.Publish(q)

	require.Equal(t, []types.Quote{q}, a.quotes())
	require.Equal(t, []types.Quote{q}, b.quotes())
	require.Empty(t, c.quotes(), "MSFT-only session must not receive AAPL quotes")
}

func TestLastUnsubscribeStopsPoller(t *testing.T) {
	rec := &pollerRecorder{}
	h := hub.New(rec.factory)
	ctx := context.Background()

	a := &fakeSession{id: "session-a"}
	b := &fakeSession{id: "session-b"}

	h.Subscribe(ctx, a, "AAPL")
	h.Subscribe(ctx, b, "AAPL")

	h.Unsubscribe(ctx, a.ID(), "AAPL")
	require.False(t, rec.pollers()[0].isStopped(), "poller must survive while a subscriber remains")

	h.Unsubscribe(ctx, b.ID(), "AAPL")
	require.True(t, rec.pollers()[0].isStopped(), "poller must stop when the last subscriber leaves")

	// Resubscribing starts a fresh poller.
	h.Subscribe(ctx, a, "AAPL")
	require.Len(t, rec.pollers(), 2)
	require.True(t, rec.pollers()[1].started)
	require.False(t, rec.pollers()[1].isStopped())
}

func TestSessionDisconnectedCleansUp(t *testing.T) {
	rec := &pollerRecorder{}
	h := hub.New(rec.factory)
	ctx := context.Background()

	a := &fakeSession{id: "session-a"}
	b := &fakeSession{id: "session-b"}

	h.Subscribe(ctx, a, "AAPL")
	h.Subscribe(ctx, a, "MSFT")
	h.Subscribe(ctx, b, "MSFT")

	h.SessionDisconnected(ctx, a.ID())

	pollers := rec.pollers()
	require.True(t, pollers[0].isStopped(), "AAPL poller had only the disconnected subscriber")
	require.False(t, pollers[1].isStopped(), "MSFT still has a live subscriber")

	h.Publish(quote("MSFT", 410.0))
	require.Len(t, b.quotes(), 1)
	require.Empty(t, a.quotes())
}

func TestSubscribeReplaysCachedQuote(t *testing.T) {
	rec := &pollerRecorder{}
	h := hub.New(rec.factory)
	ctx := context.Background()

	a := &fakeSession{id: "session-a"}
	h.Subscribe(ctx, a, "AAPL")

	cached := quote("AAPL", 150.25)
	p := rec.pollers()[0]
	p.mu.Lock()
	p.last = &cached
	p.mu.Unlock()

	b := &fakeSession{id: "session-b"}
	h.Subscribe(ctx, b, "AAPL")
	require.Equal(t, []types.Quote{cached}, b.quotes(),
		"second subscriber of a live symbol gets the cached quote")
}

// raceSession fires a publish the instant the replay reaches it, modelling
// a poll cycle completing while a subscribe is in flight.
type raceSession struct {
	fakeSession
	h     *hub.Hub
	newer types.Quote
	once  sync.Once
}

func (s *raceSession) Deliver(q types.Quote) {
	s.fakeSession.Deliver(q)
	s.once.Do(func() { go s.h.Publish(s.newer) })
}

func TestReplayPrecedesConcurrentPublish(t *testing.T) {
	rec := &pollerRecorder{}
	h := hub.New(rec.factory)
	ctx := context.Background()

	a := &fakeSession{id: "session-a"}
	h.Subscribe(ctx, a, "AAPL")

	cached := quote("AAPL", 150.25)
	newer := cached
	newer.Price = 151.00
	newer.ObservedAt = cached.ObservedAt.Add(time.Second)

	p := rec.pollers()[0]
	p.mu.Lock()
	p.last = &cached
	p.mu.Unlock()

	b := &raceSession{fakeSession: fakeSession{id: "session-b"}, h: h, newer: newer}
	h.Subscribe(ctx, b, "AAPL")

	deadline := time.Now().Add(3 * time.Second)
	for len(b.quotes()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	got := b.quotes()
	require.Len(t, got, 2)
	require.Equal(t, cached, got[0], "replay must arrive before any racing publish")
	require.Equal(t, newer, got[1])
}

func TestConcurrentSubscribeOnePoller(t *testing.T) {
	rec := &pollerRecorder{}
	h := hub.New(rec.factory)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		s := &fakeSession{id: string(rune('a' + i))}
		go func() {
			defer wg.Done()
			h.Subscribe(ctx, s, "AAPL")
		}()
	}
	wg.Wait()

	require.Len(t, rec.pollers(), 1, "concurrent subscribes must not double-start a poller")
	require.Equal(t, []string{"AAPL"}, h.ActiveSymbols())
}
