// Package sqlstore implements the repository ports on database/sql.
//
// Two drivers are supported:
//   - "sqlite"   → modernc.org/sqlite, pure Go, the default. ":memory:" is
//     used by the tests.
//   - "postgres" → github.com/jackc/pgx/v5 through its database/sql adapter.
//
// Queries are written once with "?" placeholders (or built with squirrel)
// and rebound to "$n" for Postgres.
//
// The same operation set is available on *DB and inside WithTx, because both
// are backed by a *queries bound to either the pool or the transaction.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/starswipe/internal/apperror"
	"github.com/sakif/starswipe/internal/repository"
)

// Dialect selects driver-specific SQL.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// compile-time checks
var (
	_ repository.Store   = (*DB)(nil)
	_ repository.Queries = (*queries)(nil)
)

// Config selects the driver and data source.
type Config struct {
	Driver string // "sqlite" or "postgres"
	DSN    string // file path or ":memory:" for sqlite, URL for postgres
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db      execer
	dialect Dialect
	sb      sq.StatementBuilderType
}

// DB wraps the connection pool. Its embedded *queries runs outside any
// transaction.
type DB struct {
	*queries
	conn *sql.DB
}

// Open connects, configures and migrates the database.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	dialect := Dialect(strings.ToLower(cfg.Driver))
	if dialect == "" {
		dialect = DialectSQLite
	}

	var (
		conn *sql.DB
		err  error
	)
	switch dialect {
	case DialectSQLite:
		conn, err = openSQLite(ctx, cfg.DSN)
	case DialectPostgres:
		conn, err = sql.Open("pgx", cfg.DSN)
		if err == nil {
			conn.SetMaxOpenConns(20)
		}
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening %s database: %w", dialect, err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: pinging database: %w", err)
	}

	db := &DB{queries: newQueries(conn, dialect), conn: conn}

	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: running migrations: %w", err)
	}

	return db, nil
}

// openSQLite applies the connection settings through DSN pragmas so every
// pooled connection gets them. An in-memory database lives on a single
// connection, so the pool is pinned to one.
func openSQLite(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		dsn = "data/starswipe.db"
	}

	if dsn == ":memory:" {
		conn, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		conn.SetMaxOpenConns(1)
		if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("enabling foreign keys: %w", err)
		}
		return conn, nil
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate"

	return sql.Open("sqlite", dsn)
}

func newQueries(db execer, dialect Dialect) *queries {
	var format sq.PlaceholderFormat = sq.Question
	if dialect == DialectPostgres {
		format = sq.Dollar
	}
	return &queries{
		db:      db,
		dialect: dialect,
		sb:      sq.StatementBuilder.PlaceholderFormat(format),
	}
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks connectivity. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Dialect reports which SQL dialect the store speaks.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// WithTx runs fn inside one transaction and commits if fn returns nil.
func (db *DB) WithTx(ctx context.Context, fn func(tx repository.Queries) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: beginning transaction: %w", err)
	}

	if err := fn(newQueries(tx, db.dialect)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("sqlstore: rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: committing transaction: %w", err)
	}
	return nil
}

// rebind converts "?" placeholders for the active dialect.
func (q *queries) rebind(query string) string {
	if q.dialect != DialectPostgres {
		return query
	}
	out, err := sq.Dollar.ReplacePlaceholders(query)
	if err != nil {
		// ReplacePlaceholders only fails on malformed "??" escapes, which
		// we never write.
		return query
	}
	return out
}

func (q *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.db.ExecContext(ctx, q.rebind(query), args...)
}

func (q *queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.db.QueryContext(ctx, q.rebind(query), args...)
}

func (q *queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.db.QueryRowContext(ctx, q.rebind(query), args...)
}

// isUniqueViolation reports whether err is a unique or primary key
// constraint failure on either driver.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// notFoundOr maps sql.ErrNoRows to an apperror and wraps anything else.
func notFoundOr(err error, resource, id, action string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound(resource, id)
	}
	return fmt.Errorf("sqlstore: %s: %w", action, err)
}

// expectOne turns a zero-row UPDATE into a not-found error.
func expectOne(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
