package resolve

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"golang.org/x/time/rate"

	"github.com/forklore/placescore/internal/tracing"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresConfig configures a PostgresResolver.
type PostgresConfig struct {
	// Threshold is the minimum similarity; zero uses DefaultThreshold.
	Threshold float64
	// RatePerSecond paces lookups. Zero or less disables pacing.
	RatePerSecond float64
}

// PostgresResolver resolves names with pg_trgm against the places table.
type PostgresResolver struct {
	db        *sql.DB
	threshold float64
	limiter   *rate.Limiter
}

// NewPostgresResolver creates a PostgresResolver.
func NewPostgresResolver(db *sql.DB, cfg PostgresConfig) *PostgresResolver {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &PostgresResolver{
		db:        db,
		threshold: cfg.Threshold,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

func resolveQuery(nameNorm string, threshold float64) (string, []interface{}, error) {
	return psql.Select("id").
		Column(sq.Expr("similarity(name_norm, ?) AS sim", nameNorm)).
		From("places").
		Where(sq.Expr("similarity(name_norm, ?) > ?", nameNorm, threshold)).
		OrderBy("sim DESC", "id ASC").
		Limit(1).
		ToSql()
}

// Resolve implements Resolver.
func (r *PostgresResolver) Resolve(ctx context.Context, nameNorm string) (placeID string, ok bool, err error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", false, fmt.Errorf("resolve rate limit: %w", err)
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "places", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query, args, err := resolveQuery(nameNorm, r.threshold)
	if err != nil {
		return "", false, fmt.Errorf("build resolve query: %w", err)
	}

	var sim float64
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&placeID, &sim)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve %q: %w", nameNorm, err)
	}
	return placeID, true, nil
}

// LoadPlaces reads every place for building a TrigramIndex.
func LoadPlaces(ctx context.Context, db *sql.DB) (places []Place, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "places", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query, args, err := psql.Select("id", "name_norm").From("places").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build places query: %w", err)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query places: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Place
		if err := rows.Scan(&p.ID, &p.NameNorm); err != nil {
			return nil, fmt.Errorf("scan place: %w", err)
		}
		places = append(places, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate places: %w", err)
	}
	return places, nil
}
