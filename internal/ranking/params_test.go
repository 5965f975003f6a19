package ranking

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
)

// TestDefaultParams verifies the default tuning configuration.
func TestDefaultParams(t *testing.T) {
	p := DefaultParams()

	if p.HalfLifeDays != 45 {
		t.Errorf("expected half_life_days 45, got %v", p.HalfLifeDays)
	}
	if p.TrendingWindowDays != 90 {
		t.Errorf("expected trending_window_days 90, got %d", p.TrendingWindowDays)
	}
	if p.MinThreads != 2 {
		t.Errorf("expected min_threads 2, got %d", p.MinThreads)
	}
	if p.MinTotalUpvotes != 10 {
		t.Errorf("expected min_total_upvotes 10, got %d", p.MinTotalUpvotes)
	}
	if p.MaxTopSnippets != 3 {
		t.Errorf("expected max_top_snippets 3, got %d", p.MaxTopSnippets)
	}
	if p.SnippetTruncationChars != 200 {
		t.Errorf("expected snippet_truncation_chars 200, got %d", p.SnippetTruncationChars)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Params)
		wantErr error
	}{
		{"negative half-life", func(p *Params) { p.HalfLifeDays = -45 }, ErrInvalidHalfLife},
		{"zero half-life", func(p *Params) { p.HalfLifeDays = 0 }, ErrInvalidHalfLife},
		{"NaN half-life", func(p *Params) { p.HalfLifeDays = math.NaN() }, ErrInvalidHalfLife},
		{"infinite half-life", func(p *Params) { p.HalfLifeDays = math.Inf(1) }, ErrInvalidHalfLife},
		{"negative trending window", func(p *Params) { p.TrendingWindowDays = -1 }, ErrInvalidTrendingWindow},
		{"negative min threads", func(p *Params) { p.MinThreads = -1 }, ErrInvalidMinThreads},
		{"negative min upvotes", func(p *Params) { p.MinTotalUpvotes = -1 }, ErrInvalidMinTotalUpvotes},
		{"negative max snippets", func(p *Params) { p.MaxTopSnippets = -1 }, ErrInvalidMaxTopSnippets},
		{"zero truncation", func(p *Params) { p.SnippetTruncationChars = 0 }, ErrInvalidSnippetTruncation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			if err := p.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParams_Validate_JoinsAllErrors(t *testing.T) {
	p := Params{HalfLifeDays: -1, TrendingWindowDays: -1}
	err := p.Validate()
	for _, want := range []error{ErrInvalidHalfLife, ErrInvalidTrendingWindow, ErrInvalidSnippetTruncation} {
		if !errors.Is(err, want) {
			t.Errorf("expected %v in joined error %v", want, err)
		}
	}
}

func TestParams_Overrides(t *testing.T) {
	if got := DefaultParams().Overrides(); len(got) != 0 {
		t.Errorf("defaults should have no overrides, got %v", got)
	}

	p := DefaultParams()
	p.HalfLifeDays = 60
	p.MaxTopSnippets = 5
	got := p.Overrides()
	if len(got) != 2 {
		t.Fatalf("expected 2 overrides, got %v", got)
	}
	if !strings.HasPrefix(got[0], "half_life_days: 45.00 -> 60.00") {
		t.Errorf("unexpected override entry %q", got[0])
	}
}

func TestParams_LogOverrides(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	p := DefaultParams()
	p.MinTotalUpvotes = 25
	p.LogOverrides(logger)

	if !strings.Contains(buf.String(), "min_total_upvotes: 10 -> 25") {
		t.Errorf("expected override in log output, got %q", buf.String())
	}

	// nil logger falls back to the default logger without panicking
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	DefaultParams().LogOverrides(nil)
}
