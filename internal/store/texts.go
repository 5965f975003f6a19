package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"

	"github.com/forklore/placescore/internal/tracing"
)

// DefaultTextLimit caps a single extraction pass when no limit is given.
const DefaultTextLimit = 10000

// Text is a raw Reddit comment awaiting extraction.
type Text struct {
	CommentID  string
	PostID     string
	Subreddit  string
	Body       string
	BodyHTML   string
	Score      int
	PostScore  int
	CreatedUTC time.Time
}

// TextRepository reads raw Reddit texts.
type TextRepository struct {
	db          *sql.DB
	logger      *slog.Logger
	communities []string
}

// NewTextRepository creates a TextRepository.
func NewTextRepository(db *sql.DB, opts Options) (*TextRepository, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	return &TextRepository{
		db:          db,
		logger:      opts.logger(),
		communities: opts.Communities,
	}, nil
}

func loadTextsQuery(communities []string, limit int) (string, []interface{}, error) {
	if limit <= 0 {
		limit = DefaultTextLimit
	}
	q := psql.Select(
		"comment_id", "post_id", "subreddit", "body", "body_html",
		"score", "post_score", "created_utc",
	).
		From(TableTexts).
		OrderBy("created_utc", "comment_id").
		Limit(uint64(limit))
	if len(communities) > 0 {
		q = q.Where(sq.Expr("subreddit = ANY(?)", pq.StringArray(communities)))
	}
	return q.ToSql()
}

// LoadTexts returns up to limit texts, oldest first. A limit of zero or less
// uses DefaultTextLimit.
func (r *TextRepository) LoadTexts(ctx context.Context, limit int) (texts []Text, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, TableTexts, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query, args, err := loadTextsQuery(r.communities, limit)
	if err != nil {
		return nil, fmt.Errorf("build text query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query texts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t Text
		if err := rows.Scan(
			&t.CommentID,
			&t.PostID,
			&t.Subreddit,
			&t.Body,
			&t.BodyHTML,
			&t.Score,
			&t.PostScore,
			&t.CreatedUTC,
		); err != nil {
			return nil, fmt.Errorf("scan text: %w", err)
		}
		texts = append(texts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate texts: %w", err)
	}

	tracing.SetAttributes(ctx, attribute.Int("db.rows", len(texts)))
	r.logger.Debug("loaded texts", slog.Int("count", len(texts)))
	return texts, nil
}
