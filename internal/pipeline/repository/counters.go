package repository

import (
	"context"
	"errors"

	"orderflow_backend/internal/pipeline/domain"
	"orderflow_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both pgxpool.Pool and pgx.Tx, so counter draws
// can run standalone or inside a larger transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// nextNumberTx draws the next number of a series and formats it. The
// increment is a single upsert, so concurrent draws serialize on the
// counter row and can never yield the same value.
func nextNumberTx(ctx context.Context, q querier, series domain.Series) (string, error) {
	query := `
		INSERT INTO document_counters (series, last_number)
		VALUES ($1, 1)
		ON CONFLICT (series)
		DO UPDATE SET last_number = document_counters.last_number + 1
		RETURNING last_number`

	var n int64
	if err := q.QueryRow(ctx, query, series.Name).Scan(&n); err != nil {
		return "", apperr.StorageUnavailable("failed to draw next "+series.Name+" number", err)
	}
	return series.Format(n), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Counters is the pgx implementation of CounterRepository.
type Counters struct {
	pool *pgxpool.Pool
}

// NewCounters creates a new counter repository.
func NewCounters(pool *pgxpool.Pool) *Counters {
	return &Counters{pool: pool}
}

// Next draws the next formatted number of the series.
func (r *Counters) Next(ctx context.Context, series domain.Series) (string, error) {
	return nextNumberTx(ctx, r.pool, series)
}

var _ CounterRepository = (*Counters)(nil)
