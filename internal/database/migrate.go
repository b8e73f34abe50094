package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Executor is the subset of pgx used to apply migrations. It is satisfied
// by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Executor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Schema lists the idempotent statements that create the service tables.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users (lower(email))`,

	`CREATE TABLE IF NOT EXISTS factors (
		kind           TEXT NOT NULL CHECK (kind IN ('ecological', 'management')),
		number         INTEGER NOT NULL CHECK (number > 0),
		description    TEXT NOT NULL,
		value          NUMERIC(6, 3) NOT NULL,
		recommendation TEXT NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (kind, number)
	)`,

	`CREATE TABLE IF NOT EXISTS routes (
		id                 TEXT PRIMARY KEY,
		user_id            TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		name               TEXT NOT NULL,
		kind               TEXT NOT NULL,
		time_model         TEXT NOT NULL CHECK (time_model IN ('fixed_time', 'unlimited_time')),
		available_hours    NUMERIC(5, 2) NOT NULL,
		seasonal_days      INTEGER NOT NULL,
		group_size         INTEGER NOT NULL,
		trip_length_days   INTEGER NOT NULL DEFAULT 0,
		segment_times      JSONB NOT NULL DEFAULT '[]',
		segment_distances  JSONB NOT NULL DEFAULT '[]',
		group_spacings     JSONB NOT NULL DEFAULT '[]',
		speeds             JSONB NOT NULL DEFAULT '[]',
		ecological_factors JSONB NOT NULL DEFAULT '[]',
		management_factors JSONB NOT NULL DEFAULT '[]',
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_routes_user_created ON routes (user_id, created_at DESC, id DESC)`,

	`CREATE TABLE IF NOT EXISTS route_calculations (
		id                   BIGSERIAL PRIMARY KEY,
		route_id             TEXT NOT NULL REFERENCES routes (id) ON DELETE CASCADE,
		cfn                  NUMERIC(4, 2) NOT NULL,
		m_coefficient        NUMERIC(4, 2) NOT NULL,
		average_segment_time NUMERIC(10, 2),
		max_groups           INTEGER,
		bcc                  INTEGER,
		pcc                  INTEGER,
		rcc                  INTEGER,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_route_calculations_route ON route_calculations (route_id, created_at DESC, id DESC)`,
}

// Migrate applies Schema in a single transaction.
func Migrate(ctx context.Context, db Executor) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("migrate: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, stmt := range Schema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("migrate: commit tx: %w", err)
	}

	return nil
}
