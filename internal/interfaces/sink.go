package interfaces

import "marketstream/internal/types"

// QuoteSink receives every quote a poller publishes. Implemented by the
// subscription hub.
type QuoteSink interface {
	Publish(q types.Quote)
}
