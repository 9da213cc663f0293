// Package sqlstore implements the identity unit of work over database/sql.
//
// One set of dialect-neutral statements serves both supported drivers:
// Postgres through the pgx stdlib driver and SQLite through modernc. All
// timestamps are persisted as UTC millisecond integers.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Session is a unit of work bound to a single database handle. Mutations run
// on the open transaction when one is active, otherwise directly on the
// handle. A Session is not safe for concurrent use; callers serialize.
type Session struct {
	db *sql.DB
	tx *sql.Tx
}

// New returns a session over the given database handle. The caller owns the
// handle and closes it when done.
func New(db *sql.DB) *Session {
	return &Session{db: db}
}

// Open opens a database for the given driver name ("pgx" or "sqlite") and
// verifies connectivity. Caller must call Close when done.
func Open(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Begin opens a transaction on the session. Nested transactions are not
// supported.
func (s *Session) Begin(ctx context.Context) error {
	if s.tx != nil {
		return errors.New("sqlstore: transaction already open")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	s.tx = tx
	return nil
}

// Commit commits the open transaction.
func (s *Session) Commit() error {
	if s.tx == nil {
		return errors.New("sqlstore: no open transaction")
	}
	err := s.tx.Commit()
	s.tx = nil
	return err
}

// Rollback aborts the open transaction. A rollback without an open
// transaction is a no-op.
func (s *Session) Rollback() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	return err
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Session) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// nullable maps the entity convention (empty string means unset) onto SQL
// NULL so the partial unique index on email behaves.
func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func stringOrEmpty(v sql.NullString) string {
	if v.Valid {
		return v.String
	}
	return ""
}
