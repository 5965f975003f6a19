// Package recompute runs the periodic full recompute of place aggregates:
// load every mention, score it through the aggregation pipeline and replace
// the stored snapshot wholesale.
package recompute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/forklore/placescore/internal/aggregate"
	"github.com/forklore/placescore/internal/jobs"
	"github.com/forklore/placescore/internal/mention"
	"github.com/forklore/placescore/internal/notify"
	"github.com/forklore/placescore/internal/ranking"
	"github.com/forklore/placescore/internal/tracing"
)

// JobType labels this job in the centralized background job metrics.
const JobType = jobs.JobTypeScoreRecompute

// Source provides the complete mention set for a run.
type Source interface {
	// LoadMentions returns every resolved mention to score.
	LoadMentions(ctx context.Context) ([]mention.Mention, error)
}

// Store persists the snapshot. ReplaceAggregates must swap the whole stored
// snapshot for the given one; partial merges are not allowed.
type Store interface {
	ReplaceAggregates(ctx context.Context, snapshot aggregate.Snapshot, computedAt time.Time) error
}

// Cache is an optional read-side copy of the snapshot.
type Cache interface {
	Replace(ctx context.Context, runID string, snapshot aggregate.Snapshot, computedAt time.Time) error
}

// Publisher announces a completed snapshot swap.
type Publisher interface {
	PublishReplaced(ctx context.Context, event notify.SnapshotReplaced) error
}

// JobMetrics provides centralized background job metrics tracking.
type JobMetrics interface {
	IncJobsTotal(jobType, status string)
	ObserveJobDuration(jobType string, seconds float64)
	IncJobErrors(jobType, errorType string)
}

// JobConfig configures the recompute job.
type JobConfig struct {
	// Interval is the duration between recompute cycles.
	Interval time.Duration
	// Timeout bounds a single cycle, including load and store.
	Timeout time.Duration
	// RunOnStart triggers a cycle immediately instead of waiting a full interval.
	RunOnStart bool
	// Params are the scoring tunables, validated at startup.
	Params ranking.Params
	// Workers shards the pipeline; 0 or 1 runs single-threaded.
	Workers int
	// Clock returns the reference instant for a run. Defaults to time.Now.
	Clock func() time.Time

	Logger     *slog.Logger
	Metrics    *Metrics
	JobMetrics JobMetrics
	Cache      Cache
	Publisher  Publisher
}

// Defaults for the recompute job.
const (
	DefaultInterval = 24 * time.Hour
	DefaultTimeout  = 5 * time.Minute
)

// Error type labels.
const (
	errTypeTimeout    = "timeout"
	errTypeLoad       = "load_error"
	errTypeValidation = "validation_error"
	errTypeStore      = "store_error"
	errTypeCache      = "cache_error"
	errTypePublish    = "publish_error"
)

// RunSummary describes one completed cycle.
type RunSummary struct {
	RunID            string
	ReferenceInstant time.Time
	Mentions         int
	Entities         int
	Filtered         int
	Duration         time.Duration
	// AvgIconicDelta is the mean absolute change in iconic score for entities
	// present in both this and the previous snapshot of this process.
	AvgIconicDelta float64
}

// Job periodically recomputes the aggregate snapshot.
type Job struct {
	config   JobConfig
	source   Source
	store    Store
	pipeline *aggregate.Pipeline

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	previous aggregate.Snapshot

	cycleMu sync.Mutex
}

// NewJob creates a recompute job.
func NewJob(config JobConfig, source Source, store Store) *Job {
	if config.Interval == 0 {
		config.Interval = DefaultInterval
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.Params == (ranking.Params{}) {
		config.Params = ranking.DefaultParams()
	}

	return &Job{
		config:   config,
		source:   source,
		store:    store,
		pipeline: aggregate.NewPipeline(config.Params, config.Workers),
	}
}

// Start begins the periodic recompute loop.
// Returns immediately; the job runs in a background goroutine.
func (j *Job) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx)
	return nil
}

// Stop signals the loop to stop and waits for the current cycle to finish.
func (j *Job) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh := j.stopCh
	doneCh := j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// IsRunning returns whether the loop is active.
func (j *Job) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *Job) run(ctx context.Context) {
	defer close(j.doneCh)

	if j.config.RunOnStart {
		_, _ = j.RunNow(ctx)
	}

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("score recompute job stopping due to context cancellation")
			return
		case <-j.stopCh:
			j.config.Logger.Info("score recompute job stopping due to stop signal")
			return
		case <-ticker.C:
			_, _ = j.RunNow(ctx)
		}
	}
}

// RunNow performs one full recompute cycle synchronously. Concurrent calls are
// serialized. A failed cycle leaves the stored snapshot untouched.
func (j *Job) RunNow(parentCtx context.Context) (summary RunSummary, err error) {
	j.cycleMu.Lock()
	defer j.cycleMu.Unlock()

	ctx, cancel := context.WithTimeout(parentCtx, j.config.Timeout)
	defer cancel()

	ctx, endSpan := tracing.StartSpan(ctx, "score_recompute")
	defer func() { endSpan(err) }()

	start := time.Now()
	summary.RunID = uuid.NewString()
	summary.ReferenceInstant = j.config.Clock()

	logger := j.config.Logger.With("run_id", summary.RunID)
	logger.Info("recomputing place aggregates",
		"reference_instant", summary.ReferenceInstant)

	fail := func(errType string, cause error) (RunSummary, error) {
		if ctx.Err() != nil && errors.Is(cause, context.DeadlineExceeded) {
			errType = errTypeTimeout
		}
		summary.Duration = time.Since(start)
		logger.Error("score recompute failed",
			"error_type", errType,
			"error", cause,
			"duration_seconds", summary.Duration.Seconds())
		j.recordFailure(errType, summary.Duration.Seconds())
		return summary, cause
	}

	mentions, err := j.source.LoadMentions(ctx)
	if err != nil {
		return fail(errTypeLoad, fmt.Errorf("load mentions: %w", err))
	}
	tracing.SetAttributes(ctx, attribute.Int("mentions", len(mentions)))

	result, err := j.pipeline.Run(mentions, summary.ReferenceInstant)
	if err != nil {
		return fail(errTypeValidation, fmt.Errorf("aggregate mentions: %w", err))
	}

	if err := ctx.Err(); err != nil {
		return fail(errTypeTimeout, fmt.Errorf("recompute aborted before store: %w", err))
	}

	if err := j.store.ReplaceAggregates(ctx, result.Aggregates, summary.ReferenceInstant); err != nil {
		return fail(errTypeStore, fmt.Errorf("replace aggregates: %w", err))
	}
	tracing.AddEvent(ctx, "snapshot_replaced", attribute.Int("entities", len(result.Aggregates)))

	summary.Mentions = result.Mentions
	summary.Entities = len(result.Aggregates)
	summary.Filtered = result.Filtered

	j.mu.Lock()
	summary.AvgIconicDelta = iconicDelta(j.previous, result.Aggregates)
	j.previous = result.Aggregates
	j.mu.Unlock()

	j.fanOut(ctx, logger, summary, result.Aggregates)

	summary.Duration = time.Since(start)
	j.recordSuccess(summary)

	logger.Info("score recompute completed",
		"duration_seconds", summary.Duration.Seconds(),
		"mentions", summary.Mentions,
		"entities_scored", summary.Entities,
		"entities_filtered", summary.Filtered,
		"avg_iconic_delta", summary.AvgIconicDelta)

	return summary, nil
}

// fanOut refreshes the cache and announces the swap. The stored snapshot is
// already authoritative, so failures here are logged but do not fail the run.
func (j *Job) fanOut(ctx context.Context, logger *slog.Logger, summary RunSummary, snapshot aggregate.Snapshot) {
	if j.config.Cache != nil {
		if err := j.config.Cache.Replace(ctx, summary.RunID, snapshot, summary.ReferenceInstant); err != nil {
			logger.Warn("failed to refresh aggregate cache", "error", err)
			j.recordError(errTypeCache)
		}
	}

	if j.config.Publisher != nil {
		event := notify.SnapshotReplaced{
			RunID:       summary.RunID,
			ComputedAt:  summary.ReferenceInstant,
			EntityCount: summary.Entities,
		}
		if err := j.config.Publisher.PublishReplaced(ctx, event); err != nil {
			logger.Warn("failed to publish snapshot replaced event", "error", err)
			j.recordError(errTypePublish)
		}
	}
}

func (j *Job) recordFailure(errType string, seconds float64) {
	j.recordError(errType)
	if j.config.Metrics != nil {
		j.config.Metrics.ObserveRecomputeDuration(seconds)
	}
	if j.config.JobMetrics != nil {
		j.config.JobMetrics.IncJobsTotal(JobType, jobs.StatusFailure)
		j.config.JobMetrics.ObserveJobDuration(JobType, seconds)
	}
}

func (j *Job) recordError(errType string) {
	if j.config.Metrics != nil {
		j.config.Metrics.IncRecomputeErrors()
	}
	if j.config.JobMetrics != nil {
		j.config.JobMetrics.IncJobErrors(JobType, errType)
	}
}

func (j *Job) recordSuccess(summary RunSummary) {
	seconds := summary.Duration.Seconds()
	if j.config.Metrics != nil {
		j.config.Metrics.IncRecomputeTotal()
		j.config.Metrics.ObserveRecomputeDuration(seconds)
		j.config.Metrics.SetLastRecomputeTimestamp(float64(summary.ReferenceInstant.Unix()))
		j.config.Metrics.SetLastRecomputeEntityCount(float64(summary.Entities))
		j.config.Metrics.SetLastRecomputeFilteredCount(float64(summary.Filtered))
	}
	if j.config.JobMetrics != nil {
		j.config.JobMetrics.IncJobsTotal(JobType, jobs.StatusSuccess)
		j.config.JobMetrics.ObserveJobDuration(JobType, seconds)
	}
}

// iconicDelta is the mean absolute iconic score change over entities present
// in both snapshots. Returns 0 when there is no overlap.
func iconicDelta(previous, current aggregate.Snapshot) float64 {
	var sum float64
	var n int
	for id, cur := range current {
		prev, ok := previous[id]
		if !ok {
			continue
		}
		sum += math.Abs(cur.IconicScore - prev.IconicScore)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
