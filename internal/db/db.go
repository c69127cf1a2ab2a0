package db

import (
	"context"
	"embed"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Open connects to the database named by databaseURL. URLs starting with
// "sqlite:" open a SQLite database; anything else is handed to lib/pq.
func Open(databaseURL string) (*sqlx.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	driver, dsn := parseDatabaseURL(databaseURL)
	conn, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if driver == DriverSQLite {
		// SQLite serializes writers anyway; one connection keeps
		// in-memory databases alive and avoids SQLITE_BUSY.
		conn.SetMaxOpenConns(1)
	}

	log.Printf("Database connection established (%s)", driver)
	return conn, nil
}

func parseDatabaseURL(databaseURL string) (driver, dsn string) {
	switch {
	case strings.HasPrefix(databaseURL, "sqlite://"):
		dsn = strings.TrimPrefix(databaseURL, "sqlite://")
	case strings.HasPrefix(databaseURL, "sqlite:"):
		dsn = strings.TrimPrefix(databaseURL, "sqlite:")
	default:
		return DriverPostgres, databaseURL
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return DriverSQLite, dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Store is the job ledger. It owns every read and write of configurations,
// processed episodes and conversion jobs.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp rows.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New wraps an open connection.
func New(conn *sqlx.DB, opts ...Option) *Store {
	s := &Store{
		db:  conn,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying connection.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunInTx runs fn inside a single transaction. The transaction is committed
// when fn returns nil and rolled back otherwise.
func (s *Store) RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Migrate applies the schema for the connection's driver.
func (s *Store) Migrate(ctx context.Context) error {
	name := "migrations/postgres.sql"
	if s.db.DriverName() == DriverSQLite {
		name = "migrations/sqlite.sql"
	}
	schema, err := migrations.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}

	for _, stmt := range strings.Split(string(schema), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (s *Store) lockClause() string {
	if s.db.DriverName() == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}
