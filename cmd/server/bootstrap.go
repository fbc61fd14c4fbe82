package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"marketstream/internal/commentary/claude"
	"marketstream/internal/commentary/commentaryobs"
	"marketstream/internal/commentary/noop"
	"marketstream/internal/commentary/openai"
	"marketstream/internal/gateway"
	"marketstream/internal/health"
	"marketstream/internal/hub"
	"marketstream/internal/interfaces"
	"marketstream/internal/logger"
	"marketstream/internal/news"
	"marketstream/internal/poller"
	"marketstream/internal/store"
	"marketstream/internal/trace"
	"marketstream/internal/trending"
	"marketstream/internal/upstream/polygon"
	"marketstream/internal/upstream/ratelimit"
	"marketstream/internal/upstream/upstreamobs"

	"github.com/joho/godotenv"
)

// initializeSystem initializes env, logger and tracer
func initializeSystem() error {
	// Load environment variables
	_ = godotenv.Load()

	// Initialize logger
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Initialize tracer
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	return nil
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context) (*store.Config, error) {
	path := os.Getenv("MARKETSTREAM_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	return cfg, nil
}

// initializeFetcher builds the upstream client with rate limiting and
// observability middleware
func initializeFetcher(ctx context.Context, cfg *store.Config) (interfaces.QuoteFetcher, error) {
	apiKey := os.Getenv(cfg.Upstream.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("upstream API key env %s is not set", cfg.Upstream.APIKeyEnv)
	}

	client := polygon.NewClient(apiKey,
		polygon.WithBaseURL(cfg.Upstream.BaseURL),
		polygon.WithTimeout(cfg.UpstreamTimeout()),
		polygon.WithRetryDelay(time.Duration(cfg.Upstream.RetryDelayMs)*time.Millisecond),
	)

	logger.Info(ctx, "Upstream client ready",
		"base_url", cfg.Upstream.BaseURL,
		"rate_per_second", cfg.Upstream.RatePerSecond,
		"burst", cfg.Upstream.RateBurst,
	)

	// Rate limit first, then wrap with observability middleware
	limited := ratelimit.Wrap(client, cfg.Upstream.RatePerSecond, cfg.Upstream.RateBurst)
	return upstreamobs.Wrap(limited), nil
}

// initializeHub wires the poller factory into the subscription hub. Fatal
// upstream errors from any poller mark the whole process unhealthy.
func initializeHub(cfg *store.Config, fetcher interfaces.QuoteFetcher, registry *health.Registry) *hub.Hub {
	pollCfg := poller.Config{
		Interval:       cfg.PollInterval(),
		BackoffBase:    cfg.BackoffBase(),
		BackoffCeiling: cfg.BackoffCeiling(),
	}

	var h *hub.Hub
	h = hub.New(func(symbol string) hub.SymbolPoller {
		return poller.New(symbol, fetcher, h, pollCfg, registry.SetFatal)
	})
	return h
}

// initializeGateway builds the WebSocket gateway bound to the process context
func initializeGateway(ctx context.Context, cfg *store.Config, h *hub.Hub) *gateway.Gateway {
	return gateway.New(ctx, h, gateway.Config{
		SendBuffer: cfg.Session.SendBuffer,
		WriteWait:  time.Duration(cfg.Session.WriteWaitSeconds) * time.Second,
		PongWait:   time.Duration(cfg.Session.PongWaitSeconds) * time.Second,
	})
}

// initializeTrending builds the trending symbol cache
func initializeTrending(cfg *store.Config, fetcher interfaces.QuoteFetcher) *trending.Cache {
	defaults := []string{"AAPL", "MSFT", "NVDA", "AMZN", "GOOGL", "META", "TSLA", "AMD", "NFLX", "INTC"}
	if len(defaults) > cfg.Trending.Limit {
		defaults = defaults[:cfg.Trending.Limit]
	}
	return trending.New(fetcher, defaults, cfg.Trending.Limit,
		time.Duration(cfg.Trending.RefreshMinutes)*time.Minute)
}

// initializeNews builds the headline service
func initializeNews(cfg *store.Config) *news.Service {
	return news.NewService(&news.ServiceConfig{
		MaxHeadlines:  cfg.News.MaxHeadlines,
		CacheDuration: time.Duration(cfg.News.CacheMinutes) * time.Minute,
		ScrapeTimeout: time.Duration(cfg.News.ScrapeTimeoutMs) * time.Millisecond,
		Enabled:       cfg.News.Enabled,
	})
}

// initializeStreamer initializes and returns the commentary streamer with
// observability
func initializeStreamer(ctx context.Context, cfg *store.Config) interfaces.Streamer {
	var streamer interfaces.Streamer

	switch cfg.LLM.Provider {
	case "OPENAI":
		streamer = openai.NewStreamer(cfg)
	case "CLAUDE":
		streamer = claude.NewStreamer(cfg)
	default:
		streamer = noop.NewStreamer()
		logger.Warn(ctx, "No LLM provider configured - using Noop commentary streamer")
	}

	// Wrap with observability middleware
	return commentaryobs.Wrap(streamer)
}
