// Package ingest turns raw Reddit texts into resolved place mentions.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/forklore/placescore/internal/extract"
	"github.com/forklore/placescore/internal/jobs"
	"github.com/forklore/placescore/internal/mention"
	"github.com/forklore/placescore/internal/resolve"
	"github.com/forklore/placescore/internal/store"
	"github.com/forklore/placescore/internal/tracing"
)

// JobType labels this job in the centralized background job metrics.
const JobType = jobs.JobTypeMentionExtract

// Error type labels.
const (
	errTypeLoad    = "load_error"
	errTypeResolve = "resolve_error"
	errTypeStore   = "store_error"
	errTypeParse   = "parse_error"
)

// TextSource provides raw texts to extract from.
type TextSource interface {
	LoadTexts(ctx context.Context, limit int) ([]store.Text, error)
}

// MentionSink stores mentions, ignoring duplicates.
type MentionSink interface {
	InsertMentions(ctx context.Context, ms []mention.Mention) (inserted, skipped int64, err error)
}

// JobMetrics provides centralized background job metrics tracking.
type JobMetrics interface {
	IncJobsTotal(jobType, status string)
	ObserveJobDuration(jobType string, seconds float64)
	IncJobErrors(jobType, errorType string)
}

// Config configures an ingest Job.
type Config struct {
	// BatchSize caps texts read per run. Zero uses store.DefaultTextLimit.
	BatchSize int
	// Extractor finds candidates. Nil uses the heuristic tagger.
	Extractor *extract.Extractor
	// Resolver maps names to place ids. Required.
	Resolver   resolve.Resolver
	Logger     *slog.Logger
	JobMetrics JobMetrics
}

// Report summarizes one ingest pass.
type Report struct {
	Texts      int
	Candidates int
	// Names is the number of distinct normalized names looked up.
	Names    int
	Resolved int
	Mentions int
	Inserted int64
	Skipped  int64
	Duration time.Duration
}

// ErrNoResolver is returned by New when Config.Resolver is nil.
var ErrNoResolver = errors.New("ingest: resolver is required")

// Job runs extraction passes.
type Job struct {
	config Config
	texts  TextSource
	sink   MentionSink
}

// New creates an ingest Job.
func New(cfg Config, texts TextSource, sink MentionSink) (*Job, error) {
	if cfg.Resolver == nil {
		return nil, ErrNoResolver
	}
	if cfg.Extractor == nil {
		cfg.Extractor = extract.NewExtractor(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Job{config: cfg, texts: texts, sink: sink}, nil
}

type mentionKey struct {
	place, post, comment string
}

// Run performs one pass: load texts, extract candidates, resolve every
// distinct name once, and insert the resulting mentions. Names that resolve
// to no place are dropped.
func (j *Job) Run(ctx context.Context) (report Report, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "mention_extract")
	defer func() { endSpan(err) }()

	start := time.Now()
	logger := j.config.Logger

	fail := func(errType string, cause error) (Report, error) {
		report.Duration = time.Since(start)
		logger.Error("mention extraction failed",
			"error_type", errType,
			"error", cause,
			"duration_seconds", report.Duration.Seconds())
		j.recordFailure(errType, report.Duration.Seconds())
		return report, cause
	}

	texts, err := j.texts.LoadTexts(ctx, j.config.BatchSize)
	if err != nil {
		return fail(errTypeLoad, fmt.Errorf("load texts: %w", err))
	}
	report.Texts = len(texts)
	logger.Info("extracting mentions", "texts", report.Texts)

	resolver := resolve.NewCached(j.config.Resolver)
	resolved := make(map[string]bool)
	seen := make(map[mentionKey]bool)
	var ms []mention.Mention

	for _, t := range texts {
		body := j.plainText(t)
		for _, c := range j.config.Extractor.Candidates(body) {
			report.Candidates++

			placeID, ok, err := resolver.Resolve(ctx, c.NameNorm)
			if err != nil {
				return fail(errTypeResolve, fmt.Errorf("resolve %q: %w", c.NameNorm, err))
			}
			if !ok {
				continue
			}
			resolved[c.NameNorm] = true

			key := mentionKey{placeID, t.PostID, t.CommentID}
			if seen[key] {
				continue
			}
			seen[key] = true
			ms = append(ms, toMention(placeID, t, body))
		}
	}
	report.Names = resolver.Lookups()
	report.Resolved = len(resolved)
	report.Mentions = len(ms)

	tracing.SetAttributes(ctx,
		attribute.Int("texts", report.Texts),
		attribute.Int("candidates", report.Candidates),
		attribute.Int("mentions", report.Mentions))

	report.Inserted, report.Skipped, err = j.sink.InsertMentions(ctx, ms)
	if err != nil {
		return fail(errTypeStore, fmt.Errorf("insert mentions: %w", err))
	}

	report.Duration = time.Since(start)
	if j.config.JobMetrics != nil {
		j.config.JobMetrics.IncJobsTotal(JobType, jobs.StatusSuccess)
		j.config.JobMetrics.ObserveJobDuration(JobType, report.Duration.Seconds())
	}

	logger.Info("mention extraction completed",
		"duration_seconds", report.Duration.Seconds(),
		"texts", report.Texts,
		"candidates", report.Candidates,
		"names", report.Names,
		"resolved", report.Resolved,
		"inserted", report.Inserted,
		"skipped", report.Skipped)
	return report, nil
}

// plainText prefers the rendered HTML body and falls back to the raw body
// when it is missing or unparsable.
func (j *Job) plainText(t store.Text) string {
	if t.BodyHTML == "" {
		return t.Body
	}
	text, err := extract.PlainText(t.BodyHTML)
	if err != nil {
		j.config.Logger.Warn("failed to parse comment html",
			"comment_id", t.CommentID,
			"error", err)
		if j.config.JobMetrics != nil {
			j.config.JobMetrics.IncJobErrors(JobType, errTypeParse)
		}
		return t.Body
	}
	return text
}

// toMention builds the mention record. Reddit scores can go negative; they
// are floored at zero.
func toMention(placeID string, t store.Text, body string) mention.Mention {
	return mention.Mention{
		EntityID:        placeID,
		SourceThreadID:  t.PostID,
		SourceCommentID: t.CommentID,
		CommunityID:     t.Subreddit,
		UpvoteCount:     max(t.Score, 0),
		PostUpvoteCount: max(t.PostScore, 0),
		Timestamp:       t.CreatedUTC,
		SnippetText:     body,
	}
}

func (j *Job) recordFailure(errType string, seconds float64) {
	if j.config.JobMetrics == nil {
		return
	}
	j.config.JobMetrics.IncJobErrors(JobType, errType)
	j.config.JobMetrics.IncJobsTotal(JobType, jobs.StatusFailure)
	j.config.JobMetrics.ObserveJobDuration(JobType, seconds)
}
