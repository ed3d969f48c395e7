package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/warp/tour-engine/tours"
)

type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "postgres"
)

func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	}
	return "", fmt.Errorf("%w: unsupported driver %q", ErrConnect, driver)
}

func (d Dialect) driverName() string { return string(d) }

func (d Dialect) dsn(dsn string) string {
	if d == SQLite && !strings.Contains(dsn, "_foreign_keys") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "_foreign_keys=on&_busy_timeout=5000"
	}
	return dsn
}

func (d Dialect) builder() squirrel.StatementBuilderType {
	if d == Postgres {
		return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	}
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)
}

// lockSuffix is appended to a row read that must hold until commit.
// SQLite has no row locks; its single connection already excludes writers.
func (d Dialect) lockSuffix() string {
	if d == Postgres {
		return "FOR UPDATE"
	}
	return ""
}

func (d Dialect) txOptions() *sql.TxOptions {
	if d == Postgres {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

// conflict reports whether err means the transaction lost a race and may be
// retried from the start.
func (d Dialect) conflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// serialization_failure, deadlock_detected
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// wrap tags err with sentinel, or with tours.ErrConcurrentModification when
// the database reported a serialization conflict.
func (d Dialect) wrap(op string, sentinel, err error) error {
	if d.conflict(err) {
		return fmt.Errorf("%w: %s: %v", tours.ErrConcurrentModification, op, err)
	}
	return fmt.Errorf("%w: %s: %v", sentinel, op, err)
}
