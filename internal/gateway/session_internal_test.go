package gateway

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"marketstream/internal/metrics"
	"marketstream/internal/types"
)

func deliverQuote(s *Session, price float64, at time.Time) {
	s.Deliver(types.Quote{Symbol: "AAPL", Price: price, ObservedAt: at})
}

func drain(t *testing.T, s *Session) []types.Quote {
	t.Helper()
	var out []types.Quote
	for {
		select {
		case b := <-s.send:
			var q types.Quote
			require.NoError(t, json.Unmarshal(b, &q))
			out = append(out, q)
		default:
			return out
		}
	}
}

func TestDeliverDropsOldestWhenFull(t *testing.T) {
	s := &Session{
		send: make(chan []byte, 2),
		done: make(chan struct{}),
	}

	t0 := time.Date(2024, 3, 8, 14, 30, 0, 0, time.UTC)
	deliverQuote(s, 1, t0)
	deliverQuote(s, 2, t0.Add(time.Second))
	deliverQuote(s, 3, t0.Add(2*time.Second)) // buffer full: quote 1 evicted

	got := drain(t, s)
	require.Len(t, got, 2)
	require.InEpsilon(t, 2.0, got[0].Price, 1e-9)
	require.InEpsilon(t, 3.0, got[1].Price, 1e-9)

	// Order stays monotonic in observation time after eviction.
	require.True(t, got[1].ObservedAt.After(got[0].ObservedAt))
}

func TestDeliverNeverLosesQuoteUnderContention(t *testing.T) {
	s := &Session{
		send: make(chan []byte, 2),
		done: make(chan struct{}),
	}

	before := testutil.ToFloat64(metrics.QuotesDroppedBackpressure)

	// Two producers race for the same full buffer. Every Deliver must
	// enqueue its quote exactly once; anything removed to make room must be
	// counted as an eviction, never silently lost.
	const perWriter = 200
	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			base := time.Date(2024, 3, 8, 14, 30, 0, 0, time.UTC)
			for i := 0; i < perWriter; i++ {
				deliverQuote(s, float64(w*perWriter+i), base.Add(time.Duration(i)*time.Millisecond))
			}
		}(w)
	}
	wg.Wait()

	evicted := testutil.ToFloat64(metrics.QuotesDroppedBackpressure) - before
	remaining := float64(len(s.send))
	require.Equal(t, float64(2*perWriter), evicted+remaining,
		"delivered quotes must equal counted evictions plus buffered quotes")
}

func TestDeliverAfterCloseIsNoop(t *testing.T) {
	s := &Session{
		send: make(chan []byte, 2),
		done: make(chan struct{}),
	}
	close(s.done)

	deliverQuote(s, 1, time.Now())
	require.Empty(t, drain(t, s))
}
