package polygon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"marketstream/internal/interfaces"
	"marketstream/internal/types"
	"marketstream/internal/upstream"
)

// HTTPClient describes an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for a Polygon-style market data REST API. It holds no
// cross-call state beyond configuration.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient is the HTTP client used for all requests.
	httpClient HTTPClient
	// query contains additional query parameters sent with each request.
	query url.Values
	// timeout bounds each upstream call.
	timeout time.Duration
	// retryDelay is the fixed delay before the single immediate retry on a
	// transient failure.
	retryDelay time.Duration
}

var _ interfaces.QuoteFetcher = (*Client)(nil)

// Option is a configuration option for the client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-call deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithRetryDelay sets the delay before the single transient-failure retry.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// NewClient creates a new provider client.
func NewClient(apiKey string, options ...Option) *Client {
	c := &Client{
		baseURL:    "https://api.polygon.io",
		httpClient: http.DefaultClient,
		query:      url.Values{},
		timeout:    5 * time.Second,
		retryDelay: 250 * time.Millisecond,
	}
	if apiKey != "" {
		c.query.Add("apiKey", apiKey)
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// FetchQuote returns the last NBBO quote for a symbol.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (types.RawQuote, error) {
	var resp lastQuoteResponse
	if err := c.getJSON(ctx, "/v2/last/nbbo/"+url.PathEscape(symbol), nil, &resp); err != nil {
		return types.RawQuote{}, err
	}
	return types.RawQuote{
		Symbol:     symbol,
		BidPrice:   resp.Results.BidPrice,
		BidSize:    resp.Results.BidSize,
		AskPrice:   resp.Results.AskPrice,
		AskSize:    resp.Results.AskSize,
		ObservedAt: time.Unix(0, resp.Results.Timestamp).UTC(),
	}, nil
}

// FetchPrevClose returns the previous trading day's bar for a symbol.
func (c *Client) FetchPrevClose(ctx context.Context, symbol string) (types.RawAggregate, error) {
	var resp prevCloseResponse
	q := url.Values{"adjusted": []string{"true"}}
	if err := c.getJSON(ctx, "/v2/aggs/ticker/"+url.PathEscape(symbol)+"/prev", q, &resp); err != nil {
		return types.RawAggregate{}, err
	}
	if len(resp.Results) == 0 {
		// No bar at all: surface as unavailable data rather than invent one.
		return types.RawAggregate{Symbol: symbol}, nil
	}
	bar := resp.Results[0]
	return types.RawAggregate{
		Symbol: symbol,
		Open:   bar.Open,
		High:   bar.High,
		Low:    bar.Low,
		Close:  bar.Close,
		Day:    time.UnixMilli(bar.Timestamp).UTC(),
	}, nil
}

// FetchTrending returns the tickers from the top-gainers snapshot, most
// significant first.
func (c *Client) FetchTrending(ctx context.Context, limit int) ([]string, error) {
	var resp snapshotResponse
	if err := c.getJSON(ctx, "/v2/snapshot/locale/us/markets/stocks/gainers", nil, &resp); err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(resp.Tickers))
	for _, t := range resp.Tickers {
		symbols = append(symbols, t.Ticker)
		if limit > 0 && len(symbols) >= limit {
			break
		}
	}
	return symbols, nil
}

// getJSON performs a GET with the configured deadline and decodes the body.
// Transient failures are retried once after retryDelay before surfacing.
func (c *Client) getJSON(ctx context.Context, path string, extra url.Values, out any) error {
	err := c.doGET(ctx, path, extra, out)
	if err == nil {
		return nil
	}
	if !errors.Is(err, upstream.ErrUnavailable) && !errors.Is(err, upstream.ErrTimeout) {
		return err
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", upstream.ErrTimeout, ctx.Err())
	case <-time.After(c.retryDelay):
	}
	return c.doGET(ctx, path, extra, out)
}

func (c *Client) doGET(ctx context.Context, path string, extra url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("building request URL: %w", err)
	}
	q := u.Query()
	for key, values := range c.query {
		for _, value := range values {
			q.Add(key, value)
		}
	}
	for key, values := range extra {
		for _, value := range values {
			q.Add(key, value)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: GET %s", upstream.ErrTimeout, path)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: GET %s: %v", upstream.ErrTimeout, path, ctx.Err())
		}
		return fmt.Errorf("%w: GET %s: %v", upstream.ErrUnavailable, path, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp, path); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading body for GET %s: %v", upstream.ErrUnavailable, path, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response for GET %s: %w", path, err)
	}
	return nil
}

func classifyStatus(resp *http.Response, path string) error {
	switch {
	case resp.StatusCode < 400:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: GET %s", upstream.ErrRateLimited, path)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: GET %s: http %d", upstream.ErrUnauthorized, path, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: GET %s: http %d", upstream.ErrUnavailable, path, resp.StatusCode)
	default:
		var e errorResponse
		msg := ""
		if b, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
			if json.Unmarshal(b, &e) == nil {
				msg = e.Message
				if msg == "" {
					msg = e.Error
				}
			}
		}
		return fmt.Errorf("GET %s: http %d: %s", path, resp.StatusCode, msg)
	}
}
