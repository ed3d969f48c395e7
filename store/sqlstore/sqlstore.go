/*
Package sqlstore provides a database/sql implementation of tours.TxStore.

PURPOSE:
  Persists staff, fleet, routes, tours and bookings in SQLite or PostgreSQL.
  Queries are built with squirrel; only the placeholder format, the row lock
  and the transaction isolation differ between the two dialects.

KEY TABLES:
  employees:       guides and drivers with their remaining quota
  buses:           seat capacity, active flag
  routes:          route headers
  route_segments:  ordered legs of a route, distance as decimal text
  tours:           window (departure_at, return_at) and assigned resources
  bookings:        ticket and product lines as JSON, seat quantity, money

TIMESTAMPS:
  Stored as fixed-width UTC text (see timeLayout) so that string order is
  time order in both dialects.

CONCURRENCY:
  PostgreSQL: WithTx runs at SERIALIZABLE; LockTour adds FOR UPDATE.
  Serialization failures surface as tours.ErrConcurrentModification.
  SQLite: a single open connection serialises every transaction.

USAGE:
  st, err := sqlstore.Open(ctx, "sqlite3", "file:tours.db", log)
  if err != nil {
      return err
  }
  defer st.Close()
  if err := st.Migrate(ctx); err != nil {
      return err
  }

SEE ALSO:
  - tours/store.go:  interface definitions
  - store/memory:    in-memory implementation for tests
*/
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/warp/tour-engine/tours"
)

// Store implements tours.TxStore on a *sql.DB.
type Store struct {
	*queries
	db  *sql.DB
	log *zap.Logger
}

var _ tours.TxStore = (*Store)(nil)

// Open connects with the given driver ("sqlite3" or "postgres").
// Use "file::memory:?cache=shared" or ":memory:" for an in-memory SQLite.
func Open(ctx context.Context, driver, dsn string, log *zap.Logger) (*Store, error) {
	d, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.driverName(), d.dsn(dsn))
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", ErrConnect, err)
	}
	if d == SQLite {
		// one connection: serialises writers and keeps :memory: a single database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrConnect, err)
	}
	return New(db, d, log), nil
}

// New wraps an open database. Tests pass a sqlmock connection here.
func New(db *sql.DB, d Dialect, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{queries: newQueries(db, d), db: db, log: log}
}

// SetPool applies connection pool limits. SQLite keeps its single connection.
func (s *Store) SetPool(maxOpen, maxIdle int, lifetime time.Duration) {
	if s.dialect == SQLite {
		return
	}
	s.db.SetMaxOpenConns(maxOpen)
	s.db.SetMaxIdleConns(maxIdle)
	s.db.SetConnMaxLifetime(lifetime)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx executes fn within a transaction.
// If fn returns error, transaction is rolled back.
// If fn returns nil, transaction is committed.
func (s *Store) WithTx(ctx context.Context, fn func(tours.Store) error) error {
	tx, err := s.db.BeginTx(ctx, s.dialect.txOptions())
	if err != nil {
		return s.dialect.wrap("WithTx - begin", ErrTransaction, err)
	}

	if err := fn(newQueries(tx, s.dialect)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return s.dialect.wrap("WithTx - commit", ErrTransaction, err)
	}
	return nil
}

// SaveRoute replaces a route and its segments atomically.
func (s *Store) SaveRoute(ctx context.Context, r tours.Route) error {
	return s.WithTx(ctx, func(st tours.Store) error {
		return st.SaveRoute(ctx, r)
	})
}
