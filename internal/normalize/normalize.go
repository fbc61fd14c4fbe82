package normalize

import (
	"errors"
	"fmt"

	"marketstream/internal/types"
)

var (
	// ErrIncompleteData means the raw payloads are missing a field needed
	// to produce a quote (absent/zero/negative bid or ask, no daily bar).
	ErrIncompleteData = errors.New("normalize: incomplete data")

	// ErrDivisionUndefined means the previous close is zero, so percent
	// change is undefined. Distinct from ErrIncompleteData.
	ErrDivisionUndefined = errors.New("normalize: division undefined")
)

// Normalize turns a raw quote and the previous-day aggregate into a
// canonical Quote. It is pure: no clock reads, no I/O. The observation time
// comes from the quote payload itself so ordering survives network jitter.
func Normalize(raw types.RawQuote, agg types.RawAggregate) (types.Quote, error) {
	if raw.BidPrice <= 0 || raw.AskPrice <= 0 {
		return types.Quote{}, fmt.Errorf("%w: bid %.4f ask %.4f for %s",
			ErrIncompleteData, raw.BidPrice, raw.AskPrice, raw.Symbol)
	}
	if raw.ObservedAt.IsZero() {
		return types.Quote{}, fmt.Errorf("%w: missing observation time for %s", ErrIncompleteData, raw.Symbol)
	}
	if agg.Day.IsZero() {
		return types.Quote{}, fmt.Errorf("%w: no previous-day bar for %s", ErrIncompleteData, raw.Symbol)
	}
	if agg.Close == 0 {
		return types.Quote{}, fmt.Errorf("%w: previous close is zero for %s", ErrDivisionUndefined, raw.Symbol)
	}

	mid := (raw.BidPrice + raw.AskPrice) / 2
	change := mid - agg.Close

	return types.Quote{
		Symbol:        raw.Symbol,
		Price:         mid,
		Change:        change,
		ChangePercent: change / agg.Close * 100,
		ObservedAt:    raw.ObservedAt,
	}, nil
}
