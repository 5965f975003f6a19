// Package aggregate groups resolved mentions by place, applies the evidence
// rule and folds per-mention scores into iconic and trending totals.
//
// Every run is a full recompute: the output snapshot is derived only from the
// mentions passed in and the reference instant, and it replaces the previous
// snapshot wholesale.
package aggregate

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/forklore/placescore/internal/mention"
	"github.com/forklore/placescore/internal/ranking"
)

const day = 24 * time.Hour

// Snippet is a representative mention attached to an aggregate.
type Snippet struct {
	Text      string `json:"text"`
	Upvotes   int    `json:"upvotes"`
	Permalink string `json:"permalink"`
}

// EntityAggregate is the scored summary of one place for one run.
type EntityAggregate struct {
	EntityID             string    `json:"entity_id"`
	IconicScore          float64   `json:"iconic_score"`
	TrendingScore        float64   `json:"trending_score"`
	MentionsRecentWindow int       `json:"mentions_recent_window"`
	UniqueThreadCount    int       `json:"unique_thread_count"`
	TotalMentionCount    int       `json:"total_mention_count"`
	TotalUpvotes         int       `json:"total_upvotes"`
	LastSeen             time.Time `json:"last_seen"`
	TopSnippets          []Snippet `json:"top_snippets"`
}

// Snapshot maps entity id to its aggregate.
type Snapshot map[string]EntityAggregate

// Group is the set of mentions for one entity, in input order.
type Group struct {
	EntityID string
	Mentions []mention.Mention
}

// GroupByEntity partitions mentions by EntityID. Groups are returned sorted by
// entity id; mentions keep their input order within a group. Entities with no
// mentions never appear.
func GroupByEntity(mentions []mention.Mention) []Group {
	index := make(map[string]int)
	var groups []Group

	for _, m := range mentions {
		i, ok := index[m.EntityID]
		if !ok {
			i = len(groups)
			index[m.EntityID] = i
			groups = append(groups, Group{EntityID: m.EntityID})
		}
		groups[i].Mentions = append(groups[i].Mentions, m)
	}

	slices.SortFunc(groups, func(a, b Group) int {
		return cmp.Compare(a.EntityID, b.EntityID)
	})
	return groups
}

// Aggregator scores entity groups under a fixed set of params.
type Aggregator struct {
	params ranking.Params
}

// NewAggregator creates an Aggregator. Params are assumed to be validated.
func NewAggregator(params ranking.Params) *Aggregator {
	return &Aggregator{params: params}
}

// Params returns the tunables this aggregator scores with.
func (a *Aggregator) Params() ranking.Params {
	return a.params
}

// AgeDays is the whole number of days between ts and reference, truncated.
// ts must not be after reference.
func AgeDays(reference, ts time.Time) float64 {
	return float64(reference.Sub(ts) / day)
}

// AggregateGroup scores one entity group. It returns false when the group
// fails the evidence rule, in which case no aggregate exists for the entity.
// Mentions are expected to be validated against reference already.
func (a *Aggregator) AggregateGroup(g Group, reference time.Time) (EntityAggregate, bool) {
	threads := make(map[string]struct{}, len(g.Mentions))
	totalUpvotes := 0
	for _, m := range g.Mentions {
		threads[m.SourceThreadID] = struct{}{}
		totalUpvotes += m.UpvoteCount
	}

	if len(g.Mentions) == 0 || !a.params.Accept(len(threads), totalUpvotes) {
		return EntityAggregate{}, false
	}

	agg := EntityAggregate{
		EntityID:          g.EntityID,
		UniqueThreadCount: len(threads),
		TotalMentionCount: len(g.Mentions),
		TotalUpvotes:      totalUpvotes,
	}

	var iconic, trending float64
	window := float64(a.params.TrendingWindowDays)
	for _, m := range g.Mentions {
		age := AgeDays(reference, m.Timestamp)
		b := a.params.Score(m.UpvoteCount, m.PostUpvoteCount, age, m.ContextChars())

		iconic += b.FinalScore
		if age <= window {
			trending += b.FinalScore
			agg.MentionsRecentWindow++
		}
		if m.Timestamp.After(agg.LastSeen) {
			agg.LastSeen = m.Timestamp
		}
	}

	agg.IconicScore = round2(iconic)
	agg.TrendingScore = round2(trending)
	agg.TopSnippets = a.topSnippets(g.Mentions)

	return agg, true
}

// topSnippets picks the highest-upvoted mentions, earlier timestamps first on
// ties and input order after that.
func (a *Aggregator) topSnippets(mentions []mention.Mention) []Snippet {
	ranked := slices.Clone(mentions)
	slices.SortStableFunc(ranked, func(x, y mention.Mention) int {
		if c := cmp.Compare(y.UpvoteCount, x.UpvoteCount); c != 0 {
			return c
		}
		return x.Timestamp.Compare(y.Timestamp)
	})

	n := min(a.params.MaxTopSnippets, len(ranked))
	snippets := make([]Snippet, 0, n)
	for _, m := range ranked[:n] {
		snippets = append(snippets, Snippet{
			Text:      mention.Truncate(m.SnippetText, a.params.SnippetTruncationChars),
			Upvotes:   m.UpvoteCount,
			Permalink: m.Permalink(),
		})
	}
	return snippets
}

// round2 rounds to two decimal places, halves to even.
func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
