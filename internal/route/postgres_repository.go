package route

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/recreationcalc/recreationcalc/internal/capacity"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
// Calculations live in route_calculations; reads join the latest one.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL route repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const selectRoute = `
	SELECT
		r.id, r.user_id, r.name, r.kind, r.time_model,
		r.available_hours::text, r.seasonal_days, r.group_size, r.trip_length_days,
		r.segment_times, r.segment_distances, r.group_spacings, r.speeds,
		r.ecological_factors, r.management_factors,
		r.created_at, r.updated_at,
		c.cfn::text, c.m_coefficient::text, c.average_segment_time::text,
		c.max_groups, c.bcc, c.pcc, c.rcc, c.created_at
	FROM routes r
	LEFT JOIN LATERAL (
		SELECT *
		FROM route_calculations rc
		WHERE rc.route_id = r.id
		ORDER BY rc.created_at DESC, rc.id DESC
		LIMIT 1
	) c ON true
`

// Get retrieves a route by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Route, error) {
	return r.queryRoute(ctx, selectRoute+` WHERE r.id = $1`, id)
}

// GetByUserAndID retrieves a route by user ID and route ID.
func (r *PostgresRepository) GetByUserAndID(ctx context.Context, userID, routeID string) (*Route, error) {
	return r.queryRoute(ctx, selectRoute+` WHERE r.id = $1 AND r.user_id = $2`, routeID, userID)
}

func (r *PostgresRepository) queryRoute(ctx context.Context, query string, args ...interface{}) (*Route, error) {
	rt, err := scanRoute(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRouteNotFound
		}
		return nil, err
	}
	return rt, nil
}

// scanRoute scans a row produced by selectRoute.
func scanRoute(row pgx.Row) (*Route, error) {
	var (
		rt        Route
		timeModel string
		hours     string

		cfn, m, avg   *string
		maxGroups     *int
		bcc, pcc, rcc *int
		calcCreatedAt *time.Time
	)

	err := row.Scan(
		&rt.ID,
		&rt.UserID,
		&rt.Name,
		&rt.Kind,
		&timeModel,
		&hours,
		&rt.Params.SeasonalDays,
		&rt.Params.GroupSize,
		&rt.Params.TripLengthDays,
		&rt.Params.SegmentTimes,
		&rt.Params.SegmentDistances,
		&rt.Params.GroupSpacings,
		&rt.Params.Speeds,
		&rt.Selection.Ecological,
		&rt.Selection.Management,
		&rt.CreatedAt,
		&rt.UpdatedAt,
		&cfn,
		&m,
		&avg,
		&maxGroups,
		&bcc,
		&pcc,
		&rcc,
		&calcCreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rt.TimeModel = capacity.TimeModel(timeModel)
	if rt.Params.AvailableHoursPerDay, err = decimal.NewFromString(hours); err != nil {
		return nil, fmt.Errorf("parse available hours of route %s: %w", rt.ID, err)
	}

	if cfn == nil || m == nil || calcCreatedAt == nil {
		return &rt, nil
	}

	coefficients := capacity.Coefficients{}
	if coefficients.CFN, err = decimal.NewFromString(*cfn); err != nil {
		return nil, fmt.Errorf("parse cfn of route %s: %w", rt.ID, err)
	}
	if coefficients.M, err = decimal.NewFromString(*m); err != nil {
		return nil, fmt.Errorf("parse m coefficient of route %s: %w", rt.ID, err)
	}

	figures := capacity.Figures{MaxGroups: maxGroups, BCC: bcc, PCC: pcc, RCC: rcc}
	if avg != nil {
		d, err := decimal.NewFromString(*avg)
		if err != nil {
			return nil, fmt.Errorf("parse average segment time of route %s: %w", rt.ID, err)
		}
		figures.AverageSegmentTime = decimal.NewNullDecimal(d)
	}

	rt.Calculation = &capacity.Calculation{
		Coefficients: coefficients,
		Result:       capacity.ResultFromFigures(rt.TimeModel, figures),
		CreatedAt:    calcCreatedAt.UTC(),
	}
	return &rt, nil
}

// List retrieves a user's routes, newest first.
func (r *PostgresRepository) List(ctx context.Context, userID string, opts ListOptions) (*ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	// Fetch one extra to determine if there are more results
	fetchLimit := limit + 1

	query := selectRoute + ` WHERE r.user_id = $1`
	args := []interface{}{userID}
	if opts.Cursor != "" {
		query += ` AND (r.created_at, r.id) < (SELECT created_at, id FROM routes WHERE id = $3)`
		args = append(args, fetchLimit, opts.Cursor)
	} else {
		args = append(args, fetchLimit)
	}
	query += ` ORDER BY r.created_at DESC, r.id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}
	defer rows.Close()

	var routes []*Route
	for rows.Next() {
		rt, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		routes = append(routes, rt)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &ListResult{
		Items: routes,
	}

	// If we got more results than the limit, there are more pages
	if len(routes) > limit {
		result.Items = routes[:limit]
		result.NextCursor = routes[limit-1].ID
	}

	return result, nil
}

// ListIDs returns route IDs in ascending order after afterID.
func (r *PostgresRepository) ListIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	rows, err := r.pool.Query(ctx, `SELECT id FROM routes WHERE id > $1 ORDER BY id LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query route ids: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect route ids: %w", err)
	}
	return ids, nil
}

// Create stores a new route and its calculation in one transaction.
func (r *PostgresRepository) Create(ctx context.Context, rt *Route) error {
	arrays, err := encodeArrays(rt)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback error is not critical

	query := `
		INSERT INTO routes (
			id, user_id, name, kind, time_model,
			available_hours, seasonal_days, group_size, trip_length_days,
			segment_times, segment_distances, group_spacings, speeds,
			ecological_factors, management_factors,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6::text::numeric, $7, $8, $9,
			$10::jsonb, $11::jsonb, $12::jsonb, $13::jsonb,
			$14::jsonb, $15::jsonb,
			$16, $17
		)
	`

	_, err = tx.Exec(ctx, query,
		rt.ID,
		rt.UserID,
		rt.Name,
		rt.Kind,
		string(rt.TimeModel),
		rt.Params.AvailableHoursPerDay.String(),
		rt.Params.SeasonalDays,
		rt.Params.GroupSize,
		rt.Params.TripLengthDays,
		arrays[0], arrays[1], arrays[2], arrays[3], arrays[4], arrays[5],
		rt.CreatedAt,
		rt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert route: %w", err)
	}

	if rt.Calculation != nil {
		if err := insertCalculation(ctx, tx, rt.ID, rt.Calculation); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Update replaces the route inputs and appends its calculation.
func (r *PostgresRepository) Update(ctx context.Context, rt *Route) error {
	arrays, err := encodeArrays(rt)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback error is not critical

	query := `
		UPDATE routes SET
			name = $2,
			kind = $3,
			time_model = $4,
			available_hours = $5::text::numeric,
			seasonal_days = $6,
			group_size = $7,
			trip_length_days = $8,
			segment_times = $9::jsonb,
			segment_distances = $10::jsonb,
			group_spacings = $11::jsonb,
			speeds = $12::jsonb,
			ecological_factors = $13::jsonb,
			management_factors = $14::jsonb,
			updated_at = $15
		WHERE id = $1
	`

	result, err := tx.Exec(ctx, query,
		rt.ID,
		rt.Name,
		rt.Kind,
		string(rt.TimeModel),
		rt.Params.AvailableHoursPerDay.String(),
		rt.Params.SeasonalDays,
		rt.Params.GroupSize,
		rt.Params.TripLengthDays,
		arrays[0], arrays[1], arrays[2], arrays[3], arrays[4], arrays[5],
		rt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update route: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrRouteNotFound
	}

	if rt.Calculation != nil {
		if err := insertCalculation(ctx, tx, rt.ID, rt.Calculation); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// SaveCalculation appends a calculation to an existing route.
func (r *PostgresRepository) SaveCalculation(ctx context.Context, routeID string, calc *capacity.Calculation) error {
	err := insertCalculation(ctx, r.pool, routeID, calc)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return ErrRouteNotFound
		}
	}
	return err
}

// Delete deletes a route by ID. Calculations are removed by cascade.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM routes WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

const foreignKeyViolation = "23503"

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

func insertCalculation(ctx context.Context, db execer, routeID string, calc *capacity.Calculation) error {
	figures := calc.Figures()

	var avg *string
	if figures.AverageSegmentTime.Valid {
		s := figures.AverageSegmentTime.Decimal.String()
		avg = &s
	}

	query := `
		INSERT INTO route_calculations (
			route_id, cfn, m_coefficient, average_segment_time,
			max_groups, bcc, pcc, rcc, created_at
		) VALUES ($1, $2::text::numeric, $3::text::numeric, $4::text::numeric, $5, $6, $7, $8, $9)
	`

	_, err := db.Exec(ctx, query,
		routeID,
		calc.Coefficients.CFN.StringFixed(2),
		calc.Coefficients.M.StringFixed(2),
		avg,
		figures.MaxGroups,
		figures.BCC,
		figures.PCC,
		figures.RCC,
		calc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert calculation for route %s: %w", routeID, err)
	}
	return nil
}

// encodeArrays renders the JSONB columns in insert order. Nil slices are
// stored as empty arrays.
func encodeArrays(rt *Route) ([6]string, error) {
	var out [6]string
	values := [6]interface{}{
		nonNil(rt.Params.SegmentTimes),
		nonNil(rt.Params.SegmentDistances),
		nonNil(rt.Params.GroupSpacings),
		nonNil(rt.Params.Speeds),
		nonNil(rt.Selection.Ecological),
		nonNil(rt.Selection.Management),
	}
	for i, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return out, fmt.Errorf("encode route %s arrays: %w", rt.ID, err)
		}
		out[i] = string(b)
	}
	return out, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
