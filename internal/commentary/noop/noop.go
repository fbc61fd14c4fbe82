package noop

import (
	"context"

	"marketstream/internal/interfaces"
	"marketstream/internal/logger"
	"marketstream/internal/types"
)

// Streamer is the fallback used when no LLM provider is configured. It
// emits a single static chunk so the dashboard widget still renders.
type Streamer struct{}

var _ interfaces.Streamer = (*Streamer)(nil)

func NewStreamer() *Streamer {
	return &Streamer{}
}

func (s *Streamer) Stream(ctx context.Context, req types.CommentaryRequest) (<-chan string, error) {
	logger.Debug(ctx, "Noop streamer called - commentary disabled", "symbol", req.Symbol)

	out := make(chan string, 1)
	out <- "Commentary is not configured."
	close(out)
	return out, nil
}
