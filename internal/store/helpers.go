package store

import (
	"os"
	"strings"
)

// Opts holds configuration options for store construction.
type Opts struct {
	// DSN is the backend connection string: a lib/pq connection URL for
	// Postgres, a file path for SQLite.
	DSN string
}

// Option configures store options.
type Option func(*Opts)

// WithPostgresDSN sets the Postgres connection string, falling back to the
// DATABASE_URL environment variable when empty.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		if dsn == "" {
			dsn = os.Getenv("DATABASE_URL")
		}
		o.DSN = dsn
	}
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". Postgres DSNs
// come as URLs or key=value connection strings; anything else is treated as
// an SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// WithSQLiteDSN sets the SQLite database file path, falling back to the
// SQLITE_DB_PATH environment variable when empty.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		if dsn == "" {
			dsn = os.Getenv("SQLITE_DB_PATH")
		}
		o.DSN = dsn
	}
}
