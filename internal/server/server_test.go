package server_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketstream/internal/gateway"
	"marketstream/internal/health"
	"marketstream/internal/hub"
	"marketstream/internal/server"
	"marketstream/internal/types"
	"marketstream/internal/upstream"
)

type stubFetcher struct {
	quote    types.RawQuote
	agg      types.RawAggregate
	quoteErr error
}

func (f *stubFetcher) FetchQuote(ctx context.Context, symbol string) (types.RawQuote, error) {
	if f.quoteErr != nil {
		return types.RawQuote{}, f.quoteErr
	}
	q := f.quote
	q.Symbol = symbol
	return q, nil
}

func (f *stubFetcher) FetchPrevClose(ctx context.Context, symbol string) (types.RawAggregate, error) {
	a := f.agg
	a.Symbol = symbol
	return a, nil
}

func (f *stubFetcher) FetchTrending(ctx context.Context, limit int) ([]string, error) {
	return nil, errors.New("not implemented")
}

type stubTrending struct {
	set types.TrendingSet
}

func (t *stubTrending) Current() types.TrendingSet { return t.set }

type stubHeadlines struct {
	headlines []types.Headline
	err       error
}

func (h *stubHeadlines) Headlines(ctx context.Context, symbol string) ([]types.Headline, error) {
	return h.headlines, h.err
}

type stubStreamer struct {
	chunks   []string
	startErr error
}

func (s *stubStreamer) Stream(ctx context.Context, req types.CommentaryRequest) (<-chan string, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	out := make(chan string, len(s.chunks))
	for _, c := range s.chunks {
		out <- c
	}
	close(out)
	return out, nil
}

type stubPoller struct {
	quote *types.Quote
	done  chan struct{}
}

func newStubPoller(q *types.Quote) *stubPoller {
	return &stubPoller{quote: q, done: make(chan struct{})}
}

func (p *stubPoller) Start(ctx context.Context) {}
func (p *stubPoller) Stop()                     {}
func (p *stubPoller) Done() <-chan struct{}     { return p.done }
func (p *stubPoller) LastQuote() (types.Quote, bool) {
	if p.quote == nil {
		return types.Quote{}, false
	}
	return *p.quote, true
}

type memorySession struct{ id string }

func (s *memorySession) ID() string            { return s.id }
func (s *memorySession) Deliver(q types.Quote) {}

func newTestServer(t *testing.T, opts server.Options) *httptest.Server {
	t.Helper()
	if opts.Hub == nil {
		opts.Hub = hub.New(func(symbol string) hub.SymbolPoller { return newStubPoller(nil) })
	}
	if opts.Gateway == nil {
		opts.Gateway = gateway.New(context.Background(), opts.Hub, gateway.Config{})
	}
	if opts.Registry == nil {
		opts.Registry = health.NewRegistry()
	}
	if opts.Trending == nil {
		opts.Trending = &stubTrending{}
	}
	if opts.Headlines == nil {
		opts.Headlines = &stubHeadlines{}
	}
	if opts.Streamer == nil {
		opts.Streamer = &stubStreamer{}
	}
	if opts.Fetcher == nil {
		opts.Fetcher = &stubFetcher{quoteErr: upstream.ErrUnavailable}
	}
	ts := httptest.NewServer(server.New(opts).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestQuoteServedFromLiveHub(t *testing.T) {
	cached := types.Quote{Symbol: "AAPL", Price: 150.25, Change: 2.25, ChangePercent: 1.52, ObservedAt: time.Now().UTC()}
	h := hub.New(func(symbol string) hub.SymbolPoller { return newStubPoller(&cached) })
	h.Subscribe(context.Background(), &memorySession{id: "s1"}, "AAPL")

	ts := newTestServer(t, server.Options{Hub: h})

	resp, err := http.Get(ts.URL + "/api/quote/aapl")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got types.Quote
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, "AAPL", got.Symbol)
	require.Equal(t, 150.25, got.Price)
}

func TestQuoteFallsBackToOneShotFetch(t *testing.T) {
	fetcher := &stubFetcher{
		quote: types.RawQuote{BidPrice: 150.00, BidSize: 100, AskPrice: 150.50, AskSize: 200, ObservedAt: time.Now().UTC()},
		agg:   types.RawAggregate{Close: 148.00, Day: time.Now().UTC().AddDate(0, 0, -1)},
	}

	ts := newTestServer(t, server.Options{Fetcher: fetcher})

	resp, err := http.Get(ts.URL + "/api/quote/MSFT")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got types.Quote
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, "MSFT", got.Symbol)
	require.InDelta(t, 150.25, got.Price, 1e-9)
	require.InDelta(t, 2.25, got.Change, 1e-9)
}

func TestQuoteUpstreamRateLimitMapsTo429(t *testing.T) {
	ts := newTestServer(t, server.Options{Fetcher: &stubFetcher{quoteErr: upstream.ErrRateLimited}})

	resp, err := http.Get(ts.URL + "/api/quote/NVDA")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestTrendingEndpoint(t *testing.T) {
	set := types.TrendingSet{Symbols: []string{"NVDA", "AMD"}, RefreshedAt: time.Now().UTC()}
	ts := newTestServer(t, server.Options{Trending: &stubTrending{set: set}})

	resp, err := http.Get(ts.URL + "/api/trending")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got types.TrendingSet
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, []string{"NVDA", "AMD"}, got.Symbols)
}

func TestNewsEndpointSwallowsProviderError(t *testing.T) {
	ts := newTestServer(t, server.Options{Headlines: &stubHeadlines{err: errors.New("scrape blocked")}})

	resp, err := http.Get(ts.URL + "/api/news/AAPL")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []types.Headline
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Empty(t, got)
}

func TestCommentaryStreamedAsSSE(t *testing.T) {
	ts := newTestServer(t, server.Options{Streamer: &stubStreamer{chunks: []string{"Shares ", "are up."}}})

	resp, err := http.Get(ts.URL + "/api/commentary?symbol=AAPL")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var texts []string
	sawDone := false
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: done" {
			sawDone = true
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload); err == nil && payload.Text != "" {
			texts = append(texts, payload.Text)
		}
	}
	require.Equal(t, []string{"Shares ", "are up."}, texts)
	require.True(t, sawDone)
}

func TestCommentaryRequiresSymbol(t *testing.T) {
	ts := newTestServer(t, server.Options{})

	resp, err := http.Get(ts.URL + "/api/commentary")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthzReportsFatal(t *testing.T) {
	registry := health.NewRegistry()
	ts := newTestServer(t, server.Options{Registry: registry})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	registry.SetFatal(upstream.ErrUnauthorized)

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var status health.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.False(t, status.Healthy)
	require.Contains(t, status.Fatal, "unauthorized")
}
