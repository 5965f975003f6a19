// Package store persists mentions, raw Reddit texts and the scored aggregate
// snapshot in PostgreSQL.
package store

import (
	"errors"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
)

// Table names.
const (
	TablePlaces       = "places"
	TableTexts        = "reddit_texts"
	TableMentions     = "reddit_mentions"
	TableAggregations = "place_aggregations"
)

var (
	// ErrAggregateNotFound is returned when a place has no stored aggregate.
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrNilDB is returned by constructors given a nil *sql.DB.
	ErrNilDB = errors.New("store: nil database handle")
)

// psql builds Postgres statements with $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Options configures the repositories.
type Options struct {
	Logger *slog.Logger
	// Communities restricts mention and text reads to these subreddits.
	// Empty means no restriction.
	Communities []string
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}
