package interfaces

import (
	"context"

	"marketstream/internal/types"
)

type HeadlineProvider interface {
	Headlines(ctx context.Context, symbol string) ([]types.Headline, error)
}
