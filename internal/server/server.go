package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"marketstream/internal/gateway"
	"marketstream/internal/health"
	"marketstream/internal/hub"
	"marketstream/internal/interfaces"
	"marketstream/internal/logger"
	"marketstream/internal/metrics"
	"marketstream/internal/normalize"
	"marketstream/internal/types"
	"marketstream/internal/upstream"
)

// Server exposes the streaming gateway plus the REST surface the dashboard
// polls for one-shot data: snapshots, trending, news and commentary.
type Server struct {
	addr          string
	shutdownGrace time.Duration

	hub       *hub.Hub
	gateway   *gateway.Gateway
	fetcher   interfaces.QuoteFetcher
	trending  interfaces.TrendingProvider
	headlines interfaces.HeadlineProvider
	streamer  interfaces.Streamer
	registry  *health.Registry
}

type Options struct {
	Addr          string
	ShutdownGrace time.Duration

	Hub       *hub.Hub
	Gateway   *gateway.Gateway
	Fetcher   interfaces.QuoteFetcher
	Trending  interfaces.TrendingProvider
	Headlines interfaces.HeadlineProvider
	Streamer  interfaces.Streamer
	Registry  *health.Registry
}

func New(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 10 * time.Second
	}
	return &Server{
		addr:          opts.Addr,
		shutdownGrace: opts.ShutdownGrace,
		hub:           opts.Hub,
		gateway:       opts.Gateway,
		fetcher:       opts.Fetcher,
		trending:      opts.Trending,
		headlines:     opts.Headlines,
		streamer:      opts.Streamer,
		registry:      opts.Registry,
	}
}

// Handler builds the route table. Split out from Run so tests can drive the
// mux through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /ws", s.gateway)
	mux.HandleFunc("GET /api/quote/{symbol}", s.handleQuote)
	mux.HandleFunc("GET /api/trending", s.handleTrending)
	mux.HandleFunc("GET /api/news/{symbol}", s.handleNews)
	mux.HandleFunc("GET /api/commentary", s.handleCommentary)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", metrics.Handler())

	return mux
}

// Run serves until ctx is canceled, then drains with the configured grace.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "HTTP server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownGrace)
	defer cancel()
	logger.Info(shutdownCtx, "HTTP server draining", "grace", s.shutdownGrace)
	return srv.Shutdown(shutdownCtx)
}

// handleQuote serves the last cached quote when the symbol is live, and
// falls back to a one-shot upstream fetch when no poller holds it.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol required")
		return
	}

	if q, ok := s.hub.Snapshot(symbol); ok {
		writeJSON(w, http.StatusOK, q)
		return
	}

	q, err := s.fetchOnce(r.Context(), symbol)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, upstream.ErrRateLimited):
			status = http.StatusTooManyRequests
		case errors.Is(err, normalize.ErrIncompleteData),
			errors.Is(err, normalize.ErrDivisionUndefined):
			status = http.StatusNotFound
		}
		logger.Warn(r.Context(), "Snapshot fetch failed", "symbol", symbol, "error", err)
		writeError(w, status, fmt.Sprintf("quote unavailable for %s", symbol))
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) fetchOnce(ctx context.Context, symbol string) (types.Quote, error) {
	var (
		raw types.RawQuote
		agg types.RawAggregate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		raw, err = s.fetcher.FetchQuote(gctx, symbol)
		return err
	})
	g.Go(func() error {
		var err error
		agg, err = s.fetcher.FetchPrevClose(gctx, symbol)
		return err
	})
	if err := g.Wait(); err != nil {
		return types.Quote{}, err
	}
	return normalize.Normalize(raw, agg)
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.trending.Current())
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol required")
		return
	}

	headlines, err := s.headlines.Headlines(r.Context(), symbol)
	if err != nil {
		logger.Warn(r.Context(), "Headline lookup failed", "symbol", symbol, "error", err)
		headlines = nil
	}
	if headlines == nil {
		headlines = []types.Headline{}
	}
	writeJSON(w, http.StatusOK, headlines)
}

// handleCommentary relays the commentary token stream to the browser as
// server-sent events, one chunk per event.
func (s *Server) handleCommentary(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol query parameter required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	req := types.CommentaryRequest{
		Symbol: symbol,
		Prompt: "Write a short commentary on the current state of this stock.",
		Context: map[string]any{
			"trending": s.trending.Current().Symbols,
		},
	}
	if q, ok := s.hub.Snapshot(symbol); ok {
		req.Context["quote"] = q
	}

	chunks, err := s.streamer.Stream(r.Context(), req)
	if err != nil {
		logger.Warn(r.Context(), "Commentary stream failed to start", "symbol", symbol, "error", err)
		writeError(w, http.StatusBadGateway, "commentary unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for chunk := range chunks {
		payload, err := json.Marshal(map[string]string{"text": chunk})
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
	fmt.Fprint(w, "event: done\ndata: {}\n\n")
	flusher.Flush()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := s.registry.Status()
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error(context.Background(), "Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
