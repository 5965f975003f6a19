package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"

	"github.com/forklore/placescore/internal/aggregate"
	"github.com/forklore/placescore/internal/tracing"
)

var aggregateColumns = []string{
	"place_id", "iconic_score", "trending_score", "mentions_90d",
	"unique_threads", "total_mentions", "total_upvotes", "last_seen",
	"top_snippets", "computed_at",
}

// AggregateOptions configures an AggregateRepository.
type AggregateOptions struct {
	Logger *slog.Logger
	// RefreshViews refreshes the per-city ranking views after every replace.
	RefreshViews bool
}

// AggregateRepository stores the scored snapshot.
type AggregateRepository struct {
	db           *sql.DB
	logger       *slog.Logger
	refreshViews bool
}

// NewAggregateRepository creates an AggregateRepository.
func NewAggregateRepository(db *sql.DB, opts AggregateOptions) (*AggregateRepository, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AggregateRepository{
		db:           db,
		logger:       logger,
		refreshViews: opts.RefreshViews,
	}, nil
}

// aggregateRow flattens an aggregate into COPY column order.
func aggregateRow(a aggregate.EntityAggregate, computedAt time.Time) ([]interface{}, error) {
	snippets := a.TopSnippets
	if snippets == nil {
		snippets = []aggregate.Snippet{}
	}
	raw, err := json.Marshal(snippets)
	if err != nil {
		return nil, fmt.Errorf("encode snippets for %s: %w", a.EntityID, err)
	}
	return []interface{}{
		a.EntityID,
		a.IconicScore,
		a.TrendingScore,
		a.MentionsRecentWindow,
		a.UniqueThreadCount,
		a.TotalMentionCount,
		a.TotalUpvotes,
		a.LastSeen.UTC(),
		string(raw),
		computedAt.UTC(),
	}, nil
}

// ReplaceAggregates swaps the stored snapshot for the given one inside a
// single transaction. Readers see either the old snapshot or the new one.
func (r *AggregateRepository) ReplaceAggregates(ctx context.Context, snapshot aggregate.Snapshot, computedAt time.Time) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, TableAggregations, tracing.DBOperationCopy)
	defer func() { endSpan(err) }()

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			r.logger.Warn("failed to rollback aggregate replace",
				slog.String("error", err.Error()))
		}
	}()

	deleted, err := tx.ExecContext(ctx, "DELETE FROM "+TableAggregations)
	if err != nil {
		return fmt.Errorf("clear aggregates: %w", err)
	}
	previous, _ := deleted.RowsAffected()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(TableAggregations, aggregateColumns...))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}

	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		row, err := aggregateRow(snapshot[id], computedAt)
		if err != nil {
			_ = stmt.Close()
			return err
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("copy aggregate %s: %w", id, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	tracing.SetAttributes(ctx,
		attribute.Int("db.rows_copied", len(ids)),
		attribute.Int64("db.rows_deleted", previous))
	r.logger.Info("replaced aggregate snapshot",
		slog.Int("entities", len(ids)),
		slog.Int64("previous_entities", previous),
		slog.Time("computed_at", computedAt))

	if r.refreshViews {
		if err := r.RefreshViews(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RefreshViews rebuilds the per-city ranking materialized views.
func (r *AggregateRepository) RefreshViews(ctx context.Context) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "", tracing.DBOperationRefresh)
	defer func() { endSpan(err) }()

	if _, err := r.db.ExecContext(ctx, "SELECT refresh_all_materialized_views()"); err != nil {
		return fmt.Errorf("refresh materialized views: %w", err)
	}
	r.logger.Debug("refreshed materialized views")
	return nil
}

// GetAggregate returns the stored aggregate for a place.
func (r *AggregateRepository) GetAggregate(ctx context.Context, placeID string) (agg aggregate.EntityAggregate, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, TableAggregations, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query, args, err := psql.Select(aggregateColumns[:len(aggregateColumns)-1]...).
		From(TableAggregations).
		Where(sq.Eq{"place_id": placeID}).
		ToSql()
	if err != nil {
		return agg, fmt.Errorf("build aggregate query: %w", err)
	}

	var snippets []byte
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&agg.EntityID,
		&agg.IconicScore,
		&agg.TrendingScore,
		&agg.MentionsRecentWindow,
		&agg.UniqueThreadCount,
		&agg.TotalMentionCount,
		&agg.TotalUpvotes,
		&agg.LastSeen,
		&snippets,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return agg, ErrAggregateNotFound
	}
	if err != nil {
		return agg, fmt.Errorf("query aggregate: %w", err)
	}
	if err := json.Unmarshal(snippets, &agg.TopSnippets); err != nil {
		return agg, fmt.Errorf("decode snippets for %s: %w", placeID, err)
	}
	return agg, nil
}
