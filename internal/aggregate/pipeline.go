package aggregate

import (
	"hash/fnv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/forklore/placescore/internal/mention"
	"github.com/forklore/placescore/internal/ranking"
)

// Result is the outcome of one pipeline run.
type Result struct {
	Aggregates Snapshot
	Mentions   int // mentions consumed
	Groups     int // distinct entities seen
	Filtered   int // entities rejected by the evidence rule
}

// Pipeline validates, groups, filters and scores a full mention set.
// It performs no I/O and holds no state between runs.
type Pipeline struct {
	aggregator *Aggregator
	workers    int
}

// NewPipeline creates a pipeline. workers <= 1 runs single-threaded; larger
// values shard entity groups across that many goroutines. Output does not
// depend on the worker count.
func NewPipeline(params ranking.Params, workers int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		aggregator: NewAggregator(params),
		workers:    workers,
	}
}

// Run recomputes every aggregate from mentions as of reference.
// The first invalid mention aborts the run with a *mention.ValidationError.
// An empty input yields an empty snapshot.
func (p *Pipeline) Run(mentions []mention.Mention, reference time.Time) (*Result, error) {
	if err := mention.ValidateAll(mentions, reference); err != nil {
		return nil, err
	}

	groups := GroupByEntity(mentions)
	result := &Result{
		Aggregates: make(Snapshot, len(groups)),
		Mentions:   len(mentions),
		Groups:     len(groups),
	}

	if p.workers == 1 || len(groups) < 2 {
		for _, g := range groups {
			if agg, ok := p.aggregator.AggregateGroup(g, reference); ok {
				result.Aggregates[g.EntityID] = agg
			}
		}
		result.Filtered = result.Groups - len(result.Aggregates)
		return result, nil
	}

	shards := make([][]Group, p.workers)
	for _, g := range groups {
		i := shardFor(g.EntityID, p.workers)
		shards[i] = append(shards[i], g)
	}

	partials := make([]Snapshot, p.workers)
	var eg errgroup.Group
	for i := range shards {
		eg.Go(func() error {
			out := make(Snapshot, len(shards[i]))
			for _, g := range shards[i] {
				if agg, ok := p.aggregator.AggregateGroup(g, reference); ok {
					out[g.EntityID] = agg
				}
			}
			partials[i] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	// Shards own disjoint entity sets, so the union has no collisions.
	for _, part := range partials {
		for id, agg := range part {
			result.Aggregates[id] = agg
		}
	}
	result.Filtered = result.Groups - len(result.Aggregates)
	return result, nil
}

// Aggregate runs a single-threaded pipeline and returns only the snapshot.
func Aggregate(params ranking.Params, mentions []mention.Mention, reference time.Time) (Snapshot, error) {
	res, err := NewPipeline(params, 1).Run(mentions, reference)
	if err != nil {
		return nil, err
	}
	return res.Aggregates, nil
}

func shardFor(entityID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(entityID))
	return int(h.Sum32() % uint32(n))
}
