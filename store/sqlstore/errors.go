package sqlstore

import "errors"

var (
	ErrConnect     = errors.New("sqlstore: failed to connect")
	ErrMigrate     = errors.New("sqlstore: failed to migrate schema")
	ErrTransaction = errors.New("sqlstore: transaction error")
	ErrBuildQuery  = errors.New("sqlstore: failed to build query")
	ErrExecQuery   = errors.New("sqlstore: failed to execute query")
	ErrScanRow     = errors.New("sqlstore: failed to scan row")
	ErrDecode      = errors.New("sqlstore: failed to decode column")
)
