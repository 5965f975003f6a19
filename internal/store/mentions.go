package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"

	"github.com/forklore/placescore/internal/mention"
	"github.com/forklore/placescore/internal/stats"
	"github.com/forklore/placescore/internal/tracing"
)

// insertBatchSize bounds rows per INSERT statement. Nine columns per row keeps
// a full batch well under the 65535 bind parameter limit.
const insertBatchSize = 500

var mentionColumns = []string{
	"place_id", "subreddit", "post_id", "comment_id",
	"score", "post_score", "mentioned_at", "snippet",
}

// MentionRepository reads and writes resolved mentions.
type MentionRepository struct {
	db          *sql.DB
	logger      *slog.Logger
	communities []string
	stats       *stats.WriteStats
}

// NewMentionRepository creates a MentionRepository.
func NewMentionRepository(db *sql.DB, opts Options) (*MentionRepository, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	return &MentionRepository{
		db:          db,
		logger:      opts.logger(),
		communities: opts.Communities,
		stats:       stats.NewWriteStats(),
	}, nil
}

// Stats returns the cumulative insert counters for this repository.
func (r *MentionRepository) Stats() *stats.WriteStats {
	return r.stats
}

func loadMentionsQuery(communities []string) (string, []interface{}, error) {
	q := psql.Select(mentionColumns...).
		From(TableMentions).
		OrderBy("place_id", "mentioned_at", "id")
	if len(communities) > 0 {
		q = q.Where(sq.Expr("subreddit = ANY(?)", pq.StringArray(communities)))
	}
	return q.ToSql()
}

// LoadMentions returns every stored mention, ordered by place and time.
func (r *MentionRepository) LoadMentions(ctx context.Context) (ms []mention.Mention, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, TableMentions, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query, args, err := loadMentionsQuery(r.communities)
	if err != nil {
		return nil, fmt.Errorf("build mention query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query mentions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m mention.Mention
		if err := rows.Scan(
			&m.EntityID,
			&m.CommunityID,
			&m.SourceThreadID,
			&m.SourceCommentID,
			&m.UpvoteCount,
			&m.PostUpvoteCount,
			&m.Timestamp,
			&m.SnippetText,
		); err != nil {
			return nil, fmt.Errorf("scan mention: %w", err)
		}
		ms = append(ms, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mentions: %w", err)
	}

	tracing.SetAttributes(ctx, attribute.Int("db.rows", len(ms)))
	r.logger.Debug("loaded mentions", slog.Int("count", len(ms)))
	return ms, nil
}

func insertMentionsQuery(batch []mention.Mention) (string, []interface{}, error) {
	q := psql.Insert(TableMentions).
		Columns(append([]string{"id"}, mentionColumns...)...).
		Suffix("ON CONFLICT ON CONSTRAINT uq_reddit_mentions_natural DO NOTHING")
	for _, m := range batch {
		q = q.Values(
			uuid.NewString(),
			m.EntityID,
			m.CommunityID,
			m.SourceThreadID,
			m.SourceCommentID,
			m.UpvoteCount,
			m.PostUpvoteCount,
			m.Timestamp.UTC(),
			m.SnippetText,
		)
	}
	return q.ToSql()
}

// InsertMentions writes mentions, ignoring any that already exist for the
// same (place, post, comment). It returns how many rows were inserted and how
// many were skipped as duplicates.
func (r *MentionRepository) InsertMentions(ctx context.Context, ms []mention.Mention) (inserted, skipped int64, err error) {
	if len(ms) == 0 {
		return 0, 0, nil
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, TableMentions, tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	for start := 0; start < len(ms); start += insertBatchSize {
		end := min(start+insertBatchSize, len(ms))
		batch := ms[start:end]

		query, args, err := insertMentionsQuery(batch)
		if err != nil {
			return inserted, skipped, fmt.Errorf("build mention insert: %w", err)
		}

		result, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return inserted, skipped, fmt.Errorf("insert mentions: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return inserted, skipped, fmt.Errorf("rows affected: %w", err)
		}

		batchSkipped := int64(len(batch)) - affected
		r.stats.Add(affected, batchSkipped)
		inserted += affected
		skipped += batchSkipped
	}

	tracing.SetAttributes(ctx,
		attribute.Int64("db.rows_inserted", inserted),
		attribute.Int64("db.rows_skipped", skipped))
	r.logger.Info("inserted mentions",
		slog.Int64("inserted", inserted),
		slog.Int64("skipped", skipped))
	return inserted, skipped, nil
}
