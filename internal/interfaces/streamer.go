package interfaces

import (
	"context"

	"marketstream/internal/types"
)

// Streamer produces an opaque sequence of text chunks for a commentary
// request. The returned channel is closed when the stream ends; the chunk
// content is never interpreted by the core.
type Streamer interface {
	Stream(ctx context.Context, req types.CommentaryRequest) (<-chan string, error)
}
