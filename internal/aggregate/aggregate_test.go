package aggregate

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/forklore/placescore/internal/mention"
	"github.com/forklore/placescore/internal/ranking"
)

var refTime = time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC)

func daysAgo(d int) time.Time {
	return refTime.Add(-time.Duration(d) * day)
}

func newMention(entity, thread string, upvotes int, ts time.Time) mention.Mention {
	return mention.Mention{
		EntityID:       entity,
		SourceThreadID: thread,
		CommunityID:    "FoodNYC",
		UpvoteCount:    upvotes,
		Timestamp:      ts,
		SnippetText:    "went to " + entity + " last night",
	}
}

func TestGroupByEntity(t *testing.T) {
	ms := []mention.Mention{
		newMention("b", "t3_1", 1, daysAgo(1)),
		newMention("a", "t3_2", 2, daysAgo(2)),
		newMention("b", "t3_3", 3, daysAgo(3)),
	}

	groups := GroupByEntity(ms)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].EntityID != "a" || groups[1].EntityID != "b" {
		t.Errorf("groups not sorted by entity id: %q, %q", groups[0].EntityID, groups[1].EntityID)
	}
	if len(groups[1].Mentions) != 2 || groups[1].Mentions[0].UpvoteCount != 1 {
		t.Errorf("group b should keep input order, got %+v", groups[1].Mentions)
	}
}

func TestGroupByEntity_Empty(t *testing.T) {
	if groups := GroupByEntity(nil); len(groups) != 0 {
		t.Errorf("expected no groups, got %d", len(groups))
	}
}

func TestAgeDays_TruncatesToWholeDays(t *testing.T) {
	tests := []struct {
		ts   time.Time
		want float64
	}{
		{refTime, 0},
		{refTime.Add(-23 * time.Hour), 0},
		{refTime.Add(-24 * time.Hour), 1},
		{refTime.Add(-(45*day + 23*time.Hour)), 45},
	}
	for _, tt := range tests {
		if got := AgeDays(refTime, tt.ts); got != tt.want {
			t.Errorf("AgeDays(%v) = %v, want %v", tt.ts, got, tt.want)
		}
	}
}

// TestAggregateGroup_EvidenceGating covers the evidence rule boundaries.
func TestAggregateGroup_EvidenceGating(t *testing.T) {
	agg := NewAggregator(ranking.DefaultParams())

	tests := []struct {
		name     string
		mentions []mention.Mention
		want     bool
	}{
		{
			name: "one thread nine upvotes",
			mentions: []mention.Mention{
				newMention("p", "t3_a", 4, daysAgo(1)),
				newMention("p", "t3_a", 5, daysAgo(2)),
			},
			want: false,
		},
		{
			name: "one thread ten upvotes",
			mentions: []mention.Mention{
				newMention("p", "t3_a", 4, daysAgo(1)),
				newMention("p", "t3_a", 6, daysAgo(2)),
			},
			want: true,
		},
		{
			name: "two threads zero upvotes",
			mentions: []mention.Mention{
				newMention("p", "t3_a", 0, daysAgo(1)),
				newMention("p", "t3_b", 0, daysAgo(2)),
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := agg.AggregateGroup(Group{EntityID: "p", Mentions: tt.mentions}, refTime)
			if ok != tt.want {
				t.Errorf("AggregateGroup() accepted = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestAggregateGroup_EmptyThreadCountsAsThread(t *testing.T) {
	ms := []mention.Mention{
		newMention("p", "", 0, daysAgo(1)),
		newMention("p", "t3_a", 0, daysAgo(2)),
	}
	agg, ok := NewAggregator(ranking.DefaultParams()).AggregateGroup(Group{EntityID: "p", Mentions: ms}, refTime)
	if !ok {
		t.Fatal("two distinct thread ids should pass the evidence filter")
	}
	if agg.UniqueThreadCount != 2 {
		t.Errorf("UniqueThreadCount = %d, want 2", agg.UniqueThreadCount)
	}
}

func TestAggregateGroup_EmptyGroup(t *testing.T) {
	p := ranking.DefaultParams()
	p.MinThreads = 0
	if _, ok := NewAggregator(p).AggregateGroup(Group{EntityID: "x"}, refTime); ok {
		t.Error("a group with no mentions must not produce an aggregate")
	}
}

func TestAggregateGroup_Totals(t *testing.T) {
	ms := []mention.Mention{
		newMention("katz", "t3_a", 9, refTime),
		newMention("katz", "t3_b", 0, daysAgo(45)),
		newMention("katz", "t3_b", 2, daysAgo(90)),
		newMention("katz", "t3_c", 1, daysAgo(91)),
	}
	ms[0].PostUpvoteCount = 3

	agg, ok := NewAggregator(ranking.DefaultParams()).AggregateGroup(Group{EntityID: "katz", Mentions: ms}, refTime)
	if !ok {
		t.Fatal("expected group to be accepted")
	}

	if agg.UniqueThreadCount != 3 {
		t.Errorf("UniqueThreadCount = %d, want 3", agg.UniqueThreadCount)
	}
	if agg.TotalMentionCount != 4 {
		t.Errorf("TotalMentionCount = %d, want 4", agg.TotalMentionCount)
	}
	if agg.TotalUpvotes != 12 {
		t.Errorf("TotalUpvotes = %d, want 12", agg.TotalUpvotes)
	}
	if agg.MentionsRecentWindow != 3 {
		t.Errorf("MentionsRecentWindow = %d, want 3 (day 90 is inside the window)", agg.MentionsRecentWindow)
	}
	if !agg.LastSeen.Equal(refTime) {
		t.Errorf("LastSeen = %v, want %v", agg.LastSeen, refTime)
	}

	var iconic, trending float64
	p := ranking.DefaultParams()
	for _, m := range ms {
		age := AgeDays(refTime, m.Timestamp)
		s := p.Score(m.UpvoteCount, m.PostUpvoteCount, age, m.ContextChars()).FinalScore
		iconic += s
		if age <= 90 {
			trending += s
		}
	}
	if agg.IconicScore != math.RoundToEven(iconic*100)/100 {
		t.Errorf("IconicScore = %v, want %v", agg.IconicScore, math.RoundToEven(iconic*100)/100)
	}
	if agg.TrendingScore != math.RoundToEven(trending*100)/100 {
		t.Errorf("TrendingScore = %v, want %v", agg.TrendingScore, math.RoundToEven(trending*100)/100)
	}
	if agg.TrendingScore > agg.IconicScore {
		t.Errorf("trending %v exceeds iconic %v", agg.TrendingScore, agg.IconicScore)
	}
}

func TestAggregateGroup_RoundsToTwoDecimals(t *testing.T) {
	ms := []mention.Mention{
		newMention("p", "t3_a", 9, refTime),
		newMention("p", "t3_b", 0, refTime),
	}
	ms[0].SnippetText = ""
	ms[1].SnippetText = ""

	agg, _ := NewAggregator(ranking.DefaultParams()).AggregateGroup(Group{EntityID: "p", Mentions: ms}, refTime)
	// (sqrt(10)+0.3) + (1+0.3) = 4.7623 -> 4.76
	if agg.IconicScore != 4.76 {
		t.Errorf("IconicScore = %v, want 4.76", agg.IconicScore)
	}
}

func TestRound2_HalvesToEven(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.125, 0.12},
		{0.375, 0.38},
		{2.5, 2.5},
		{3.4623, 3.46},
		{1.7311, 1.73},
		{0, 0},
	}
	for _, tt := range tests {
		if got := round2(tt.in); got != tt.want {
			t.Errorf("round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// TestAggregateGroup_TopSnippetOrdering: upvotes [5, 20, 3, 20] at t1<t2<t3<t4.
func TestAggregateGroup_TopSnippetOrdering(t *testing.T) {
	ms := []mention.Mention{
		newMention("p", "t3_1", 5, daysAgo(4)),
		newMention("p", "t3_2", 20, daysAgo(3)),
		newMention("p", "t3_3", 3, daysAgo(2)),
		newMention("p", "t3_4", 20, daysAgo(1)),
	}

	agg, ok := NewAggregator(ranking.DefaultParams()).AggregateGroup(Group{EntityID: "p", Mentions: ms}, refTime)
	if !ok {
		t.Fatal("expected group to be accepted")
	}
	if len(agg.TopSnippets) != 3 {
		t.Fatalf("expected 3 snippets, got %d", len(agg.TopSnippets))
	}

	wantLinks := []string{
		"https://reddit.com/r/FoodNYC/comments/2",
		"https://reddit.com/r/FoodNYC/comments/4",
		"https://reddit.com/r/FoodNYC/comments/1",
	}
	wantUpvotes := []int{20, 20, 5}
	for i, s := range agg.TopSnippets {
		if s.Permalink != wantLinks[i] {
			t.Errorf("snippet %d permalink = %q, want %q", i, s.Permalink, wantLinks[i])
		}
		if s.Upvotes != wantUpvotes[i] {
			t.Errorf("snippet %d upvotes = %d, want %d", i, s.Upvotes, wantUpvotes[i])
		}
	}
}

func TestAggregateGroup_SnippetTruncationAndPermalink(t *testing.T) {
	long := strings.Repeat("pastrami ", 40)
	ms := []mention.Mention{
		{
			EntityID:        "katz",
			SourceThreadID:  "t3_thread",
			SourceCommentID: "t1_comment",
			CommunityID:     "AskNYC",
			UpvoteCount:     50,
			Timestamp:       daysAgo(3),
			SnippetText:     long,
		},
	}

	agg, ok := NewAggregator(ranking.DefaultParams()).AggregateGroup(Group{EntityID: "katz", Mentions: ms}, refTime)
	if !ok {
		t.Fatal("expected group to be accepted")
	}
	s := agg.TopSnippets[0]
	if len([]rune(s.Text)) != 200 {
		t.Errorf("snippet length = %d, want 200", len([]rune(s.Text)))
	}
	if s.Permalink != "https://reddit.com/r/AskNYC/comments/thread/_/comment" {
		t.Errorf("Permalink = %q", s.Permalink)
	}
}

func TestAggregateGroup_SnippetLimitFromParams(t *testing.T) {
	p := ranking.DefaultParams()
	p.MaxTopSnippets = 1
	ms := []mention.Mention{
		newMention("p", "t3_1", 5, daysAgo(1)),
		newMention("p", "t3_2", 8, daysAgo(1)),
	}
	agg, _ := NewAggregator(p).AggregateGroup(Group{EntityID: "p", Mentions: ms}, refTime)
	if len(agg.TopSnippets) != 1 || agg.TopSnippets[0].Upvotes != 8 {
		t.Errorf("expected single top snippet with 8 upvotes, got %+v", agg.TopSnippets)
	}
}

func TestAggregate_EmptyInput(t *testing.T) {
	snap, err := Aggregate(ranking.DefaultParams(), nil, refTime)
	if err != nil {
		t.Fatalf("Aggregate(nil) error = %v", err)
	}
	if len(snap) != 0 {
		t.Errorf("expected empty snapshot, got %d entries", len(snap))
	}
}

func TestAggregate_RejectsFutureTimestamp(t *testing.T) {
	ms := []mention.Mention{
		newMention("p", "t3_1", 50, daysAgo(1)),
		newMention("p", "t3_2", 50, refTime.Add(time.Hour)),
	}

	_, err := Aggregate(ranking.DefaultParams(), ms, refTime)
	var vErr *mention.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected *mention.ValidationError, got %v", err)
	}
	if vErr.Index != 1 || !errors.Is(err, mention.ErrFutureTimestamp) {
		t.Errorf("unexpected validation error %v", err)
	}
}

func TestAggregate_RejectsMissingEntity(t *testing.T) {
	ms := []mention.Mention{newMention("", "t3_1", 50, daysAgo(1))}
	if _, err := Aggregate(ranking.DefaultParams(), ms, refTime); !errors.Is(err, mention.ErrEmptyEntityID) {
		t.Errorf("expected ErrEmptyEntityID, got %v", err)
	}
}

func TestAggregate_ExistsIffAccepted(t *testing.T) {
	ms := []mention.Mention{
		newMention("weak", "t3_1", 2, daysAgo(1)),
		newMention("strong", "t3_1", 12, daysAgo(1)),
		newMention("spread", "t3_1", 0, daysAgo(1)),
		newMention("spread", "t3_2", 0, daysAgo(200)),
	}

	snap, err := Aggregate(ranking.DefaultParams(), ms, refTime)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if _, ok := snap["weak"]; ok {
		t.Error("weak should be filtered out")
	}
	for _, id := range []string{"strong", "spread"} {
		if _, ok := snap[id]; !ok {
			t.Errorf("%s should be present", id)
		}
	}
}

func TestAggregate_Idempotent(t *testing.T) {
	ms := fixtureMentions(200)

	first, err := Aggregate(ranking.DefaultParams(), ms, refTime)
	if err != nil {
		t.Fatalf("first run error = %v", err)
	}
	second, err := Aggregate(ranking.DefaultParams(), ms, refTime)
	if err != nil {
		t.Fatalf("second run error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("two runs over identical input produced different snapshots")
	}
}

func TestAggregate_TrendingNeverExceedsIconic(t *testing.T) {
	snap, err := Aggregate(ranking.DefaultParams(), fixtureMentions(500), refTime)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(snap) == 0 {
		t.Fatal("fixture should produce aggregates")
	}
	for id, agg := range snap {
		if agg.TrendingScore > agg.IconicScore {
			t.Errorf("%s: trending %v > iconic %v", id, agg.TrendingScore, agg.IconicScore)
		}
		if agg.IconicScore < 0 || agg.TrendingScore < 0 {
			t.Errorf("%s: negative score", id)
		}
	}
}

// fixtureMentions builds a deterministic spread of mentions across entities,
// threads and ages.
func fixtureMentions(n int) []mention.Mention {
	ms := make([]mention.Mention, 0, n)
	for i := 0; i < n; i++ {
		entity := "place-" + string(rune('a'+i%17))
		thread := "t3_" + string(rune('a'+i%7))
		m := newMention(entity, thread, (i*37)%60, daysAgo((i*13)%400))
		m.PostUpvoteCount = (i * 11) % 300
		if i%3 == 0 {
			m.SourceCommentID = "t1_" + string(rune('a'+i%23))
		}
		m.SnippetText = strings.Repeat("x", (i*97)%2500)
		ms = append(ms, m)
	}
	return ms
}
