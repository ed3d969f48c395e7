/*
main.go - Application entry point

PURPOSE:
  Command line for the tour engine: the HTTP server, the notification
  worker and schema migration share one binary and one config file.

COMMANDS:
  tourengine serve     HTTP API with graceful shutdown
  tourengine worker    asynq consumer for assignment notices
  tourengine migrate   create or update the database schema
  tourengine version   print build info

FLAGS:
  --config   TOML config path (default: config.toml; missing file = defaults)

ENVIRONMENT:
  TOUR_DB_DSN, TOUR_HTTP_PORT, STRIPE_SECRET_KEY, REDIS_ADDR override the file.

EXAMPLES:
  # In-memory SQLite, everything local
  TOUR_DB_DSN=":memory:" ./tourengine serve

  # Postgres with Redis cache and queue
  ./tourengine --config=/etc/tourengine/config.toml serve

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
*/
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
