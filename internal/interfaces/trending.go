package interfaces

import "marketstream/internal/types"

type TrendingProvider interface {
	Current() types.TrendingSet
}
