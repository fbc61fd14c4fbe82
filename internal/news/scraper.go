package news

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"marketstream/internal/logger"
	"marketstream/internal/types"
)

// Scraper collects news headlines for a symbol from financial news sites.
type Scraper struct {
	sources []Source
	timeout time.Duration
}

// Source defines one news site to scrape.
type Source struct {
	Name       string
	BaseURL    string
	SearchPath string // "{symbol}" is replaced with the ticker
	Selectors  Selectors
	RateLimit  time.Duration
}

// Selectors holds the CSS selectors for extracting headline data.
type Selectors struct {
	Container   string
	Title       string
	URL         string
	PublishedAt string
}

// NewScraper creates a scraper with the default source list.
func NewScraper(timeout time.Duration) *Scraper {
	return &Scraper{
		sources: defaultSources(),
		timeout: timeout,
	}
}

func defaultSources() []Source {
	return []Source{
		{
			Name:       "Finviz",
			BaseURL:    "https://finviz.com",
			SearchPath: "/quote.ashx?t={symbol}",
			Selectors: Selectors{
				Container:   "tr.news-table-row",
				Title:       "a.tab-link-news",
				URL:         "a.tab-link-news",
				PublishedAt: "td[align=right]",
			},
			RateLimit: 2 * time.Second,
		},
		{
			Name:       "YahooFinance",
			BaseURL:    "https://finance.yahoo.com",
			SearchPath: "/quote/{symbol}/news",
			Selectors: Selectors{
				Container:   "li.stream-item",
				Title:       "h3 a",
				URL:         "h3 a",
				PublishedAt: "div.publishing",
			},
			RateLimit: 2 * time.Second,
		},
	}
}

// Headlines fetches up to max headlines for a symbol across all sources.
func (s *Scraper) Headlines(ctx context.Context, symbol string, max int) ([]types.Headline, error) {
	perSource := max / len(s.sources)
	if perSource < 1 {
		perSource = 1
	}

	all := []types.Headline{}
	for _, source := range s.sources {
		headlines, err := s.scrapeSource(ctx, source, symbol, perSource)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to scrape source", err, "source", source.Name, "symbol", symbol)
			continue
		}
		all = append(all, headlines...)
		if len(all) >= max {
			all = all[:max]
			break
		}

		time.Sleep(source.RateLimit)
	}

	logger.Debug(ctx, "Headline scraping completed", "symbol", symbol, "headlines", len(all))
	return all, nil
}

func (s *Scraper) scrapeSource(ctx context.Context, source Source, symbol string, max int) ([]types.Headline, error) {
	headlines := []types.Headline{}

	c := colly.NewCollector(
		colly.AllowedDomains(domainOf(source.BaseURL)),
		colly.MaxDepth(1),
	)
	c.SetRequestTimeout(s.timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	})

	c.OnHTML(source.Selectors.Container, func(e *colly.HTMLElement) {
		if len(headlines) >= max {
			return
		}

		title := strings.TrimSpace(e.ChildText(source.Selectors.Title))
		if title == "" {
			return
		}

		link := e.ChildAttr(source.Selectors.URL, "href")
		if link == "" {
			return
		}
		if !strings.HasPrefix(link, "http") {
			link = source.BaseURL + link
		}

		headlines = append(headlines, types.Headline{
			Symbol:      symbol,
			Title:       title,
			URL:         link,
			Source:      source.Name,
			PublishedAt: parsePublished(e.DOM, source.Selectors.PublishedAt),
		})
	})

	c.OnError(func(r *colly.Response, err error) {
		logger.Debug(ctx, "Scraping error", "source", source.Name, "url", r.Request.URL.String(), "error", err)
	})

	searchURL := source.BaseURL + strings.ReplaceAll(source.SearchPath, "{symbol}", strings.ToUpper(symbol))
	if err := c.Visit(searchURL); err != nil {
		return nil, fmt.Errorf("visiting %s: %w", searchURL, err)
	}
	c.Wait()

	return headlines, nil
}

// parsePublished extracts a timestamp from the publish cell when the site
// provides one in a parseable format; a zero time is fine otherwise.
func parsePublished(sel *goquery.Selection, selector string) time.Time {
	text := strings.TrimSpace(sel.Find(selector).First().Text())
	if text == "" {
		return time.Time{}
	}
	for _, layout := range []string{"Jan-02-06 03:04PM", "2006-01-02T15:04:05Z07:00", "Jan 2, 2006"} {
		if ts, err := time.Parse(layout, text); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

func domainOf(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return u.Host
}
