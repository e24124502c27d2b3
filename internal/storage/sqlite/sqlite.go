// Package sqlite is the embedded storage backend, built on the pure-Go
// modernc.org/sqlite driver. It is the default backend: a single file, no
// server, suitable for one repository per tracker database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "modernc.org/sqlite"

	"github.com/edavis10/issuekit/internal/storage/sqlstore"
)

type dialect struct{}

func (dialect) Name() string { return "sqlite" }

func (dialect) PrimaryKey() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }

func (dialect) BeginTx(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
	// the DSN carries _txlock=immediate, so writers take the lock up front
	return db.BeginTx(ctx, nil)
}

func (dialect) PrepareDDL(stmt string) string { return stmt }

func (dialect) IgnorableDDLError(error) bool { return false }

// DSN builds the connection string for a database file. ":memory:" yields a
// private in-memory database, used by tests.
func DSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// Open opens (creating if needed) the database at path and applies the
// schema. Migration retries briefly when another process holds the write
// lock.
func Open(ctx context.Context, path string) (*sqlstore.Store, error) {
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// a single writer connection sidesteps SQLITE_BUSY between our own
	// transactions
	db.SetMaxOpenConns(1)

	policy := backoff.WithContext(newMigratePolicy(), ctx)
	err = backoff.Retry(func() error {
		return sqlstore.Migrate(ctx, db, dialect{})
	}, policy)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return sqlstore.New(db, dialect{}), nil
}

func newMigratePolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	return b
}
