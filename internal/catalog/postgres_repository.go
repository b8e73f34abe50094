package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/recreationcalc/recreationcalc/internal/capacity"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL factor repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// List returns all factors, ecological first.
func (r *PostgresRepository) List(ctx context.Context) ([]Factor, error) {
	query := `
		SELECT kind, number, description, value::text, recommendation, updated_at
		FROM factors
		ORDER BY kind = 'management', number
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query factors: %w", err)
	}
	defer rows.Close()

	var factors []Factor
	for rows.Next() {
		var (
			f     Factor
			kind  string
			value string
		)
		if err := rows.Scan(&kind, &f.Number, &f.Description, &value, &f.Recommendation, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan factor: %w", err)
		}

		f.Kind = capacity.FactorKind(kind)
		if f.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("parse value of factor %s/%d: %w", kind, f.Number, err)
		}
		factors = append(factors, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate factors: %w", err)
	}

	return factors, nil
}

// Upsert creates or replaces the given factors in one transaction.
func (r *PostgresRepository) Upsert(ctx context.Context, factors []Factor) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback error is not critical

	query := `
		INSERT INTO factors (kind, number, description, value, recommendation, updated_at)
		VALUES ($1, $2, $3, $4::text::numeric, $5, $6)
		ON CONFLICT (kind, number) DO UPDATE SET
			description = EXCLUDED.description,
			value = EXCLUDED.value,
			recommendation = EXCLUDED.recommendation,
			updated_at = EXCLUDED.updated_at
	`

	now := time.Now()
	for _, f := range factors {
		if _, err := tx.Exec(ctx, query, string(f.Kind), f.Number, f.Description, f.Value.String(), f.Recommendation, now); err != nil {
			return fmt.Errorf("upsert factor %s/%d: %w", f.Kind, f.Number, err)
		}
	}

	return tx.Commit(ctx)
}

// Seed inserts the given factors, leaving existing entries untouched.
func (r *PostgresRepository) Seed(ctx context.Context, factors []Factor) error {
	query := `
		INSERT INTO factors (kind, number, description, value, recommendation)
		VALUES ($1, $2, $3, $4::text::numeric, $5)
		ON CONFLICT (kind, number) DO NOTHING
	`

	for _, f := range factors {
		if _, err := r.pool.Exec(ctx, query, string(f.Kind), f.Number, f.Description, f.Value.String(), f.Recommendation); err != nil {
			return fmt.Errorf("seed factor %s/%d: %w", f.Kind, f.Number, err)
		}
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
