package hub

import (
	"context"
	"strings"
	"sync"

	"marketstream/internal/logger"
	"marketstream/internal/types"
)

// Session is the hub's view of one connected dashboard session. Deliver
// must never block; slow consumers buffer and drop on their own side.
type Session interface {
	ID() string
	Deliver(q types.Quote)
}

// SymbolPoller is the hub's handle on a per-symbol poll loop.
type SymbolPoller interface {
	Start(ctx context.Context)
	Stop()
	Done() <-chan struct{}
	LastQuote() (types.Quote, bool)
}

// PollerFactory builds a poller for a symbol. The hub is the only caller;
// it guarantees at most one live poller per symbol.
type PollerFactory func(symbol string) SymbolPoller

// Hub owns the symbol→session and session→symbol maps and the poller
// lifecycle. All map mutations are serialized behind one mutex so a
// subscribe and a last-unsubscribe can never race into duplicate or
// orphaned pollers.
type Hub struct {
	factory PollerFactory

	mu          sync.Mutex
	subscribers map[string]map[string]Session // symbol -> sessionID -> session
	sessionSubs map[string]map[string]bool    // sessionID -> set of symbols
	pollers     map[string]SymbolPoller
}

func New(factory PollerFactory) *Hub {
	return &Hub{
		factory:     factory,
		subscribers: make(map[string]map[string]Session),
		sessionSubs: make(map[string]map[string]bool),
		pollers:     make(map[string]SymbolPoller),
	}
}

// Subscribe registers a session's interest in a symbol, starting a poller
// if this is the symbol's first subscriber. Idempotent per (session,
// symbol). A live symbol's cached quote is replayed to the session here,
// before it joins the fan-out set: Publish copies its targets under the
// same mutex, so no concurrently published newer quote can reach the
// session ahead of the replay.
func (h *Hub) Subscribe(ctx context.Context, s Session, symbol string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessionSubs[s.ID()] == nil {
		h.sessionSubs[s.ID()] = make(map[string]bool)
	}
	if h.sessionSubs[s.ID()][symbol] {
		// Already subscribed; replay the cached quote anyway.
		if p, ok := h.pollers[symbol]; ok {
			if q, ok := p.LastQuote(); ok {
				s.Deliver(q)
			}
		}
		return
	}
	h.sessionSubs[s.ID()][symbol] = true

	p, ok := h.pollers[symbol]
	if !ok {
		p = h.factory(symbol)
		h.pollers[symbol] = p
		p.Start(ctx)
		logger.Info(ctx, "First subscriber, poller started", "symbol", symbol, "session", s.ID())
	}

	// A new viewer of a live symbol sees a price immediately instead of
	// waiting out a poll cycle. Deliver never blocks, so holding the mutex
	// here is safe.
	if q, ok := p.LastQuote(); ok {
		s.Deliver(q)
	}

	if h.subscribers[symbol] == nil {
		h.subscribers[symbol] = make(map[string]Session)
	}
	h.subscribers[symbol][s.ID()] = s
}

// Unsubscribe removes one (session, symbol) mapping. The symbol's poller is
// stopped once no subscriber remains; the stop is a graceful drain, any
// in-flight upstream call finishes and is discarded.
func (h *Hub) Unsubscribe(ctx context.Context, sessionID, symbol string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(ctx, sessionID, symbol)
}

// SessionDisconnected drops every subscription the session holds.
func (h *Hub) SessionDisconnected(ctx context.Context, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for symbol := range h.sessionSubs[sessionID] {
		h.removeLocked(ctx, sessionID, symbol)
	}
	delete(h.sessionSubs, sessionID)
}

func (h *Hub) removeLocked(ctx context.Context, sessionID, symbol string) {
	if subs, ok := h.sessionSubs[sessionID]; ok {
		delete(subs, symbol)
	}
	sessions, ok := h.subscribers[symbol]
	if !ok {
		return
	}
	delete(sessions, sessionID)
	if len(sessions) > 0 {
		return
	}

	delete(h.subscribers, symbol)
	if p, ok := h.pollers[symbol]; ok {
		p.Stop()
		delete(h.pollers, symbol)
		logger.Info(ctx, "Last subscriber gone, poller stopping", "symbol", symbol)
	}
}

// Publish fans a quote out to every session subscribed to its symbol.
// Targets are copied under the lock; delivery happens outside it so one
// session's buffer can never delay another's.
func (h *Hub) Publish(q types.Quote) {
	h.mu.Lock()
	targets := make([]Session, 0, len(h.subscribers[q.Symbol]))
	for _, s := range h.subscribers[q.Symbol] {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.Deliver(q)
	}
}

// Snapshot returns the cached quote for a symbol if a poller is live.
func (h *Hub) Snapshot(symbol string) (types.Quote, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	h.mu.Lock()
	p, ok := h.pollers[symbol]
	h.mu.Unlock()
	if !ok {
		return types.Quote{}, false
	}
	return p.LastQuote()
}

// ActiveSymbols returns the symbols currently being polled.
func (h *Hub) ActiveSymbols() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.pollers))
	for sym := range h.pollers {
		out = append(out, sym)
	}
	return out
}
