package ranking

import "math"

// Scoring constants.
const (
	// PostUpvoteWeight scales the thread's own upvotes relative to the comment's.
	PostUpvoteWeight = 0.3
	// MaxContextBoost caps the verbosity bonus at +30%.
	MaxContextBoost = 0.3
	// ContextCharsPerBoost is how many characters earn a full 1.0 of boost
	// before the cap is applied.
	ContextCharsPerBoost = 10000.0
)

// ScoreBreakdown holds every intermediate value of a mention score.
// It lives only for the duration of an aggregation pass.
type ScoreBreakdown struct {
	AgeDays      float64
	UpvoteWeight float64
	DecayFactor  float64
	ContextBoost float64
	FinalScore   float64
}

// UpvoteWeight dampens upvotes with a square root rather than a log so that
// high-magnitude signal is compressed without being flattened:
// sqrt(comment+1) + 0.3*sqrt(post+1).
func UpvoteWeight(commentUpvotes, postUpvotes int) float64 {
	return math.Sqrt(float64(commentUpvotes)+1) + PostUpvoteWeight*math.Sqrt(float64(postUpvotes)+1)
}

// ContextBoost returns 1 + min(0.3, contextChars/10000).
func ContextBoost(contextChars int) float64 {
	return 1.0 + math.Min(MaxContextBoost, float64(contextChars)/ContextCharsPerBoost)
}

// Score computes the breakdown for one mention using p's half-life.
// All inputs must be non-negative; callers validate beforehand.
func (p Params) Score(commentUpvotes, postUpvotes int, ageDays float64, contextChars int) ScoreBreakdown {
	b := ScoreBreakdown{
		AgeDays:      ageDays,
		UpvoteWeight: UpvoteWeight(commentUpvotes, postUpvotes),
		DecayFactor:  Decay(ageDays, p.HalfLifeDays),
		ContextBoost: ContextBoost(contextChars),
	}
	b.FinalScore = b.UpvoteWeight * b.DecayFactor * b.ContextBoost
	return b
}

// MentionScore is the final score of a mention under the default params.
func MentionScore(commentUpvotes, postUpvotes int, ageDays float64, contextChars int) float64 {
	return DefaultParams().Score(commentUpvotes, postUpvotes, ageDays, contextChars).FinalScore
}
