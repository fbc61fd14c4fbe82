package news

import (
	"context"
	"sync"
	"time"

	"marketstream/internal/interfaces"
	"marketstream/internal/logger"
	"marketstream/internal/types"
)

// Service provides per-symbol news headlines with caching. Scrape failures
// degrade to the cached (or empty) list; callers never see an error for a
// source being down.
type Service struct {
	scraper *Scraper
	cache   *headlineCache
	cfg     *ServiceConfig
}

var _ interfaces.HeadlineProvider = (*Service)(nil)

// ServiceConfig configures the headline service.
type ServiceConfig struct {
	MaxHeadlines  int           // Maximum headlines per symbol
	CacheDuration time.Duration // How long to cache headlines
	ScrapeTimeout time.Duration // Timeout for scraping operations
	Enabled       bool          // Whether headline scraping is enabled
}

func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		MaxHeadlines:  15,
		CacheDuration: 1 * time.Hour,
		ScrapeTimeout: 10 * time.Second,
		Enabled:       true,
	}
}

// headlineCache stores scraped headlines per symbol with a TTL.
type headlineCache struct {
	mu   sync.RWMutex
	data map[string]*cacheEntry
	ttl  time.Duration
}

type cacheEntry struct {
	headlines []types.Headline
	timestamp time.Time
}

func newHeadlineCache(ttl time.Duration) *headlineCache {
	cache := &headlineCache{
		data: make(map[string]*cacheEntry),
		ttl:  ttl,
	}

	go cache.cleanupLoop()

	return cache
}

func (c *headlineCache) get(symbol string) ([]types.Headline, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.data[symbol]
	if !exists {
		return nil, false
	}
	if time.Since(entry.timestamp) > c.ttl {
		return nil, false
	}
	return entry.headlines, true
}

func (c *headlineCache) set(symbol string, headlines []types.Headline) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[symbol] = &cacheEntry{
		headlines: headlines,
		timestamp: time.Now(),
	}
}

func (c *headlineCache) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.cleanup()
	}
}

func (c *headlineCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for symbol, entry := range c.data {
		if now.Sub(entry.timestamp) > c.ttl {
			delete(c.data, symbol)
		}
	}
}

// NewService creates a headline service.
func NewService(cfg *ServiceConfig) *Service {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	return &Service{
		scraper: NewScraper(cfg.ScrapeTimeout),
		cache:   newHeadlineCache(cfg.CacheDuration),
		cfg:     cfg,
	}
}

// Headlines returns cached headlines for a symbol, scraping fresh ones on a
// cache miss.
func (s *Service) Headlines(ctx context.Context, symbol string) ([]types.Headline, error) {
	if !s.cfg.Enabled {
		return []types.Headline{}, nil
	}

	if cached, ok := s.cache.get(symbol); ok {
		logger.Debug(ctx, "Using cached headlines", "symbol", symbol, "count", len(cached))
		return cached, nil
	}

	headlines, err := s.scraper.Headlines(ctx, symbol, s.cfg.MaxHeadlines)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to scrape headlines", err, "symbol", symbol)
		return []types.Headline{}, nil
	}

	s.cache.set(symbol, headlines)
	return headlines, nil
}

// CachedSymbols lists the symbols currently held in the cache.
func (s *Service) CachedSymbols() []string {
	s.cache.mu.RLock()
	defer s.cache.mu.RUnlock()

	symbols := make([]string, 0, len(s.cache.data))
	for sym := range s.cache.data {
		symbols = append(symbols, sym)
	}
	return symbols
}

// ClearCache drops all cached headlines.
func (s *Service) ClearCache() {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	s.cache.data = make(map[string]*cacheEntry)
}
