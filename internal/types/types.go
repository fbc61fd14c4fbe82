package types

import "time"

// Quote is the canonical normalized quote delivered to subscribers.
// Price is the mid of best bid and best ask; Change and ChangePercent are
// relative to the previous trading day's close.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	ObservedAt    time.Time `json:"timestamp"`
}

// RawQuote is the provider's last-quote payload after decoding, before
// normalization. Discarded once a Quote has been produced.
type RawQuote struct {
	Symbol     string
	BidPrice   float64
	BidSize    float64
	AskPrice   float64
	AskSize    float64
	ObservedAt time.Time
}

// RawAggregate is the provider's daily-bar payload before normalization.
type RawAggregate struct {
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Day    time.Time
}

// TrendingSet is an immutable snapshot of the currently trending symbols.
// Replaced wholesale on refresh, never mutated in place.
type TrendingSet struct {
	Symbols     []string  `json:"symbols"`
	RefreshedAt time.Time `json:"refreshedAt"`
}

// Headline is a scraped news headline for a symbol.
type Headline struct {
	Symbol      string    `json:"symbol"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"publishedAt,omitempty"`
}

// CommentaryRequest describes what the commentary model should talk about.
// The content of the response is opaque to the streaming core.
type CommentaryRequest struct {
	Symbol  string
	Prompt  string
	Context map[string]any
}
