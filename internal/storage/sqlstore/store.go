// Package sqlstore implements the storage contract over database/sql. The
// SQL is written to the common subset of SQLite and MySQL; the dialect
// supplies the few pieces that differ (primary key DDL, transaction start,
// DDL error tolerance).
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/edavis10/issuekit/internal/storage"
)

// Dialect abstracts the backend differences.
type Dialect interface {
	// Name identifies the backend ("sqlite", "mysql").
	Name() string
	// PrimaryKey is the DDL clause for an auto-incrementing id column.
	PrimaryKey() string
	// BeginTx starts a transaction with the backend's preferred options.
	BeginTx(ctx context.Context, db *sql.DB) (*sql.Tx, error)
	// PrepareDDL rewrites a DDL statement for the backend.
	PrepareDDL(stmt string) string
	// IgnorableDDLError reports whether a migration error is harmless
	// (an index that already exists).
	IgnorableDDLError(err error) bool
}

// Store is a storage.Store over one *sql.DB.
type Store struct {
	reader
	db      *sql.DB
	dialect Dialect
}

// New wraps an open database handle. Migrate must have been run (Open in the
// sqlite and mysql packages does both).
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{reader: reader{q: db}, db: db, dialect: dialect}
}

// Migrate applies the schema, statement by statement.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	for _, stmt := range strings.Split(Schema(dialect.PrimaryKey()), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, dialect.PrepareDDL(stmt)); err != nil {
			if dialect.IgnorableDDLError(err) {
				continue
			}
			return fmt.Errorf("migrate %s: %w", dialect.Name(), err)
		}
	}
	return nil
}

// RunInTransaction executes fn inside one database transaction. A non-nil
// error or a panic rolls everything back; the panic is re-raised after the
// rollback.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	sqlTx, err := s.dialect.BeginTx(ctx, s.db)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	tx := &transaction{reader: reader{q: sqlTx}, tx: sqlTx}
	committed := false
	defer func() {
		if committed {
			return
		}
		_ = sqlTx.Rollback()
		if r := recover(); r != nil {
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
