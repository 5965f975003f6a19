package ranking

import "math"

// Decay returns the exponential recency weight for a mention that is ageDays
// old: exp(-ln2 * ageDays / halfLifeDays). The result is 1.0 at age 0, 0.5 at
// one half-life, and strictly decreasing after that.
//
// ageDays must be non-negative; future timestamps are rejected upstream by
// mention validation and are not guarded against here.
func Decay(ageDays, halfLifeDays float64) float64 {
	return math.Exp(-math.Ln2 * ageDays / halfLifeDays)
}

// RecencyDecay is Decay with the default 45 day half-life.
func RecencyDecay(ageDays float64) float64 {
	return Decay(ageDays, DefaultHalfLifeDays)
}
