package commentaryobs

import (
	"context"

	"marketstream/internal/interfaces"
	"marketstream/internal/logger"
	"marketstream/internal/trace"
	"marketstream/internal/types"
)

// observableStreamer wraps a Streamer with observability (logging & tracing)
type observableStreamer struct {
	streamer interfaces.Streamer
}

// Compile-time interface check
var _ interfaces.Streamer = (*observableStreamer)(nil)

// Wrap wraps a streamer with observability middleware
func Wrap(streamer interfaces.Streamer) interfaces.Streamer {
	return &observableStreamer{streamer: streamer}
}

// Stream starts the commentary stream and counts delivered chunks. The
// span covers the whole stream, not just the initial request.
func (o *observableStreamer) Stream(ctx context.Context, req types.CommentaryRequest) (<-chan string, error) {
	ctx, span := trace.StartSpan(ctx, "commentary.Stream")

	logger.DebugSkip(ctx, 1, "Starting commentary stream", "symbol", req.Symbol)

	inner, err := o.streamer.Stream(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to start commentary stream", err, "symbol", req.Symbol)
		span.End()
		return nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer span.End()

		chunks := 0
		for chunk := range inner {
			chunks++
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		logger.DebugSkip(ctx, 1, "Commentary stream finished", "symbol", req.Symbol, "chunks", chunks)
	}()
	return out, nil
}
