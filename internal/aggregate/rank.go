package aggregate

import (
	"cmp"
	"slices"
)

// Order selects which score Rank sorts by.
type Order int

const (
	ByIconic Order = iota
	ByTrending
)

func (o Order) String() string {
	if o == ByTrending {
		return "trending"
	}
	return "iconic"
}

// Rank returns the aggregates of s sorted by the chosen score, highest first,
// with entity id ascending on ties. limit <= 0 returns everything.
func Rank(s Snapshot, order Order, limit int) []EntityAggregate {
	out := make([]EntityAggregate, 0, len(s))
	for _, agg := range s {
		out = append(out, agg)
	}

	slices.SortFunc(out, func(a, b EntityAggregate) int {
		if c := cmp.Compare(order.score(b), order.score(a)); c != 0 {
			return c
		}
		return cmp.Compare(a.EntityID, b.EntityID)
	})

	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

func (o Order) score(a EntityAggregate) float64 {
	if o == ByTrending {
		return a.TrendingScore
	}
	return a.IconicScore
}
