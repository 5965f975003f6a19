package ranking

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// Default tuning values.
const (
	DefaultHalfLifeDays           = 45.0
	DefaultTrendingWindowDays     = 90
	DefaultMinThreads             = 2
	DefaultMinTotalUpvotes        = 10
	DefaultMaxTopSnippets         = 3
	DefaultSnippetTruncationChars = 200
)

// Validation errors
var (
	ErrInvalidHalfLife          = errors.New("half_life_days must be a finite number greater than 0")
	ErrInvalidTrendingWindow    = errors.New("trending_window_days must be non-negative")
	ErrInvalidMinThreads        = errors.New("min_threads must be non-negative")
	ErrInvalidMinTotalUpvotes   = errors.New("min_total_upvotes must be non-negative")
	ErrInvalidMaxTopSnippets    = errors.New("max_top_snippets must be non-negative")
	ErrInvalidSnippetTruncation = errors.New("snippet_truncation_chars must be greater than 0")
)

// Params holds every scoring tunable.
type Params struct {
	HalfLifeDays           float64 `koanf:"half_life_days" json:"half_life_days"`
	TrendingWindowDays     int     `koanf:"trending_window_days" json:"trending_window_days"`
	MinThreads             int     `koanf:"min_threads" json:"min_threads"`
	MinTotalUpvotes        int     `koanf:"min_total_upvotes" json:"min_total_upvotes"`
	MaxTopSnippets         int     `koanf:"max_top_snippets" json:"max_top_snippets"`
	SnippetTruncationChars int     `koanf:"snippet_truncation_chars" json:"snippet_truncation_chars"`
}

// DefaultParams returns the default scoring configuration.
func DefaultParams() Params {
	return Params{
		HalfLifeDays:           DefaultHalfLifeDays,
		TrendingWindowDays:     DefaultTrendingWindowDays,
		MinThreads:             DefaultMinThreads,
		MinTotalUpvotes:        DefaultMinTotalUpvotes,
		MaxTopSnippets:         DefaultMaxTopSnippets,
		SnippetTruncationChars: DefaultSnippetTruncationChars,
	}
}

// Validate rejects configurations that would make scores non-finite or
// negative. It is meant to run once at startup. All problems are joined into
// the returned error.
func (p Params) Validate() error {
	var errs []error

	if math.IsNaN(p.HalfLifeDays) || math.IsInf(p.HalfLifeDays, 0) || p.HalfLifeDays <= 0 {
		errs = append(errs, ErrInvalidHalfLife)
	}
	if p.TrendingWindowDays < 0 {
		errs = append(errs, ErrInvalidTrendingWindow)
	}
	if p.MinThreads < 0 {
		errs = append(errs, ErrInvalidMinThreads)
	}
	if p.MinTotalUpvotes < 0 {
		errs = append(errs, ErrInvalidMinTotalUpvotes)
	}
	if p.MaxTopSnippets < 0 {
		errs = append(errs, ErrInvalidMaxTopSnippets)
	}
	if p.SnippetTruncationChars <= 0 {
		errs = append(errs, ErrInvalidSnippetTruncation)
	}

	return errors.Join(errs...)
}

// Overrides lists the fields of p that differ from DefaultParams, formatted
// as "field: default -> value".
func (p Params) Overrides() []string {
	d := DefaultParams()
	var out []string

	if p.HalfLifeDays != d.HalfLifeDays {
		out = append(out, fmt.Sprintf("half_life_days: %.2f -> %.2f", d.HalfLifeDays, p.HalfLifeDays))
	}
	if p.TrendingWindowDays != d.TrendingWindowDays {
		out = append(out, fmt.Sprintf("trending_window_days: %d -> %d", d.TrendingWindowDays, p.TrendingWindowDays))
	}
	if p.MinThreads != d.MinThreads {
		out = append(out, fmt.Sprintf("min_threads: %d -> %d", d.MinThreads, p.MinThreads))
	}
	if p.MinTotalUpvotes != d.MinTotalUpvotes {
		out = append(out, fmt.Sprintf("min_total_upvotes: %d -> %d", d.MinTotalUpvotes, p.MinTotalUpvotes))
	}
	if p.MaxTopSnippets != d.MaxTopSnippets {
		out = append(out, fmt.Sprintf("max_top_snippets: %d -> %d", d.MaxTopSnippets, p.MaxTopSnippets))
	}
	if p.SnippetTruncationChars != d.SnippetTruncationChars {
		out = append(out, fmt.Sprintf("snippet_truncation_chars: %d -> %d", d.SnippetTruncationChars, p.SnippetTruncationChars))
	}

	return out
}

// LogOverrides reports which tunables differ from the defaults.
func (p Params) LogOverrides(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if overrides := p.Overrides(); len(overrides) > 0 {
		logger.Info("loaded scoring params with overrides", "overrides", overrides)
		return
	}
	logger.Info("loaded scoring params (using all defaults)")
}
