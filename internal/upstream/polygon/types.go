package polygon

// Wire shapes for the provider's REST responses. Single-letter fields match
// the provider schema; nothing outside this package sees them.

type lastQuoteResponse struct {
	Status    string        `json:"status"`
	RequestID string        `json:"request_id"`
	Results   lastQuoteData `json:"results"`
}

type lastQuoteData struct {
	Ticker   string  `json:"T"`
	BidPrice float64 `json:"p"`
	BidSize  float64 `json:"s"`
	AskPrice float64 `json:"P"`
	AskSize  float64 `json:"S"`
	// SIP timestamp, nanoseconds since epoch
	Timestamp int64 `json:"t"`
}

type prevCloseResponse struct {
	Status       string         `json:"status"`
	Ticker       string         `json:"ticker"`
	ResultsCount int            `json:"resultsCount"`
	Results      []prevCloseBar `json:"results"`
}

type prevCloseBar struct {
	Ticker string  `json:"T"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume float64 `json:"v"`
	// Bar start, milliseconds since epoch
	Timestamp int64 `json:"t"`
}

type snapshotResponse struct {
	Status  string           `json:"status"`
	Tickers []snapshotTicker `json:"tickers"`
}

type snapshotTicker struct {
	Ticker           string  `json:"ticker"`
	TodaysChange     float64 `json:"todaysChange"`
	TodaysChangePerc float64 `json:"todaysChangePerc"`
	Updated          int64   `json:"updated"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}
