package polygon_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketstream/internal/upstream"
	"marketstream/internal/upstream/polygon"
)

// httpClientFunc adapts a function to the polygon.HTTPClient interface.
type httpClientFunc func(req *http.Request) (*http.Response, error)

func (f httpClientFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestFetchQuote(t *testing.T) {
	t.Parallel()

	calls := 0
	client := polygon.NewClient("test-key", polygon.WithHTTPClient(httpClientFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		require.Equal(t, http.MethodGet, req.Method)
		require.Equal(t, "/v2/last/nbbo/AAPL", req.URL.Path)
		require.Equal(t, "test-key", req.URL.Query().Get("apiKey"))

		return jsonResponse(http.StatusOK, `{
			"status": "OK",
			"results": {"T": "AAPL", "p": 150.00, "s": 5, "P": 150.50, "S": 3, "t": 1700000000000000000}
		}`), nil
	})))

	raw, err := client.FetchQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, "AAPL", raw.Symbol)
	require.InEpsilon(t, 150.00, raw.BidPrice, 1e-9)
	require.InEpsilon(t, 150.50, raw.AskPrice, 1e-9)
	require.Equal(t, time.Unix(0, 1700000000000000000).UTC(), raw.ObservedAt)
}

func TestFetchPrevClose(t *testing.T) {
	t.Parallel()

	client := polygon.NewClient("test-key", polygon.WithHTTPClient(httpClientFunc(func(req *http.Request) (*http.Response, error) {
		require.Equal(t, "/v2/aggs/ticker/AAPL/prev", req.URL.Path)
		require.Equal(t, "true", req.URL.Query().Get("adjusted"))

		return jsonResponse(http.StatusOK, `{
			"status": "OK",
			"ticker": "AAPL",
			"resultsCount": 1,
			"results": [{"T": "AAPL", "o": 147.0, "h": 149.0, "l": 146.5, "c": 148.0, "t": 1699920000000}]
		}`), nil
	})))

	agg, err := client.FetchPrevClose(context.Background(), "AAPL")
	require.NoError(t, err)
	require.InEpsilon(t, 148.0, agg.Close, 1e-9)
	require.Equal(t, time.UnixMilli(1699920000000).UTC(), agg.Day)
}

func TestFetchPrevCloseNoBar(t *testing.T) {
	t.Parallel()

	client := polygon.NewClient("k", polygon.WithHTTPClient(httpClientFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"status": "OK", "resultsCount": 0, "results": []}`), nil
	})))

	agg, err := client.FetchPrevClose(context.Background(), "NEWIPO")
	require.NoError(t, err)
	require.True(t, agg.Day.IsZero())
	require.Zero(t, agg.Close)
}

func TestFetchTrendingLimit(t *testing.T) {
	t.Parallel()

	client := polygon.NewClient("k", polygon.WithHTTPClient(httpClientFunc(func(req *http.Request) (*http.Response, error) {
		require.Contains(t, req.URL.Path, "/snapshot/locale/us/markets/stocks/gainers")
		return jsonResponse(http.StatusOK, `{
			"status": "OK",
			"tickers": [{"ticker": "AAPL"}, {"ticker": "MSFT"}, {"ticker": "NVDA"}]
		}`), nil
	})))

	symbols, err := client.FetchTrending(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, []string{"AAPL", "MSFT"}, symbols)
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, upstream.ErrRateLimited},
		{"unauthorized", http.StatusUnauthorized, upstream.ErrUnauthorized},
		{"forbidden", http.StatusForbidden, upstream.ErrUnauthorized},
		{"server error", http.StatusInternalServerError, upstream.ErrUnavailable},
		{"bad gateway", http.StatusBadGateway, upstream.ErrUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := polygon.NewClient("k",
				polygon.WithRetryDelay(time.Millisecond),
				polygon.WithHTTPClient(httpClientFunc(func(req *http.Request) (*http.Response, error) {
					return jsonResponse(tc.status, `{"status": "ERROR"}`), nil
				})))

			_, err := client.FetchQuote(context.Background(), "AAPL")
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestTransientFailureRetriesOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	client := polygon.NewClient("k",
		polygon.WithRetryDelay(time.Millisecond),
		polygon.WithHTTPClient(httpClientFunc(func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				return jsonResponse(http.StatusServiceUnavailable, `{}`), nil
			}
			return jsonResponse(http.StatusOK, `{
				"status": "OK",
				"results": {"T": "AAPL", "p": 150.00, "s": 5, "P": 150.50, "S": 3, "t": 1700000000000000000}
			}`), nil
		})))

	raw, err := client.FetchQuote(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.InEpsilon(t, 150.0, raw.BidPrice, 1e-9)
}

func TestRateLimitedNotRetried(t *testing.T) {
	t.Parallel()

	calls := 0
	client := polygon.NewClient("k",
		polygon.WithRetryDelay(time.Millisecond),
		polygon.WithHTTPClient(httpClientFunc(func(req *http.Request) (*http.Response, error) {
			calls++
			return jsonResponse(http.StatusTooManyRequests, `{}`), nil
		})))

	_, err := client.FetchQuote(context.Background(), "AAPL")
	require.ErrorIs(t, err, upstream.ErrRateLimited)
	require.Equal(t, 1, calls)
}
