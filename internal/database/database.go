package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver
)

// Dialect identifies the SQL flavour behind a DB.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Options configures the connection pool.
type Options struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB is the process-wide connection pool together with its dialect. It is
// created once at startup and closed after the HTTP server has drained.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Wrap attaches a dialect to an already opened pool.
func Wrap(db *sql.DB, dialect Dialect) *DB {
	return &DB{DB: db, Dialect: dialect}
}

// New creates a new database connection pool and verifies it is reachable.
func New(ctx context.Context, opts Options) (*DB, error) {
	var (
		driverName string
		dsn        string
		dialect    Dialect
	)
	switch strings.ToLower(opts.Driver) {
	case "", "sqlite":
		driverName, dsn, dialect = "sqlite", sqliteDSN(opts.URL), DialectSQLite
	case "postgres", "pgx":
		driverName, dsn, dialect = "pgx", opts.URL, DialectPostgres
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", driverName, err)
	}
	return Wrap(sqlDB, dialect), nil
}

// sqliteDSN enables foreign keys, WAL and a busy timeout unless the caller
// already passed pragmas. Transactions begin IMMEDIATE so that concurrent
// read-then-write transactions wait on busy_timeout instead of failing with
// SQLITE_BUSY on lock upgrade.
func sqliteDSN(url string) string {
	var params []string
	if !strings.Contains(url, "_pragma=") {
		params = append(params,
			"_pragma=foreign_keys(1)",
			"_pragma=busy_timeout(5000)",
			"_pragma=journal_mode(WAL)",
		)
	}
	if !strings.Contains(url, "_txlock=") {
		params = append(params, "_txlock=immediate")
	}
	if len(params) == 0 {
		return url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + strings.Join(params, "&")
}

// Rebind rewrites '?' placeholders into the dialect's bind syntax.
func (db *DB) Rebind(query string) string {
	if db.Dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Maintain runs the dialect's housekeeping statements.
func (db *DB) Maintain(ctx context.Context) error {
	var stmts []string
	switch db.Dialect {
	case DialectPostgres:
		stmts = []string{"ANALYZE users", "ANALYZE notes"}
	default:
		stmts = []string{"PRAGMA optimize", "PRAGMA wal_checkpoint(TRUNCATE)"}
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}
