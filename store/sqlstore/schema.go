package sqlstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// schema is valid in both SQLite and PostgreSQL. Money is BIGINT minor
// units; distances are decimal text.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		remaining_quota INTEGER NOT NULL CHECK (remaining_quota >= 0),
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_employees_role_quota
		ON employees(role, remaining_quota)`,

	`CREATE TABLE IF NOT EXISTS buses (
		id TEXT PRIMARY KEY,
		plate TEXT NOT NULL DEFAULT '',
		seat_capacity INTEGER NOT NULL CHECK (seat_capacity > 0),
		active BOOLEAN NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS routes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS route_segments (
		route_id TEXT NOT NULL REFERENCES routes(id),
		idx INTEGER NOT NULL,
		station TEXT NOT NULL DEFAULT '',
		distance TEXT NOT NULL,
		PRIMARY KEY (route_id, idx)
	)`,

	`CREATE TABLE IF NOT EXISTS tours (
		id TEXT PRIMARY KEY,
		route_id TEXT NOT NULL REFERENCES routes(id),
		name TEXT NOT NULL DEFAULT '',
		departure_at TEXT NOT NULL,
		return_at TEXT NOT NULL,
		duration_seconds BIGINT NOT NULL,
		guide_id TEXT NOT NULL DEFAULT '',
		driver_id TEXT NOT NULL DEFAULT '',
		bus_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tours_status_departure
		ON tours(status, departure_at)`,
	`CREATE INDEX IF NOT EXISTS idx_tours_return_at
		ON tours(return_at)`,

	`CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		tour_id TEXT NOT NULL REFERENCES tours(id),
		customer_id TEXT NOT NULL,
		tickets_json TEXT NOT NULL,
		products_json TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		boarding_index INTEGER NOT NULL,
		status TEXT NOT NULL,
		total_price BIGINT NOT NULL,
		paid_amount BIGINT NOT NULL DEFAULT 0,
		payment_ref TEXT NOT NULL DEFAULT '',
		refunded_amount BIGINT NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_tour_status
		ON bookings(tour_id, status)`,
}

// Migrate creates the schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: statement %d: %v", ErrMigrate, i+1, err)
		}
	}
	s.log.Info("schema migrated", zap.String("dialect", string(s.dialect)), zap.Int("statements", len(schema)))
	return nil
}
