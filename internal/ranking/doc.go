// Package ranking provides the per-mention scoring components used to build
// iconic and trending popularity signals for places.
//
// Basic Usage:
//
//	params := ranking.DefaultParams()
//	if err := params.Validate(); err != nil {
//		return err
//	}
//
//	// Gate an entity group before spending time on scoring
//	if !params.Accept(uniqueThreads, totalUpvotes) {
//		return
//	}
//
//	// Score a single mention
//	b := params.Score(commentUpvotes, postUpvotes, ageDays, contextChars)
//	iconic += b.FinalScore
//
// Components:
//
// Decay converts an age in days into a multiplicative weight in (0, 1] using
// an exponential half-life. Score combines square-root dampened upvotes, the
// decay weight and a capped context-length boost. Accept is the evidence rule:
// an entity needs either corroboration across threads or a strong upvote total.
//
// Tuning:
//
// All thresholds live in Params. DefaultParams holds the calibrated values
// (45 day half-life, 90 day trending window, 2 threads or 10 upvotes of
// evidence). Configured values replace the defaults at startup and are
// validated once; nothing is validated mid-run.
package ranking
