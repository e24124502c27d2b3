// Package mysql is the server storage backend for shared deployments.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/edavis10/issuekit/internal/storage/sqlstore"
)

// mysql error 1061: duplicate key name, raised when an index already exists
const errDuplicateKeyName = 1061

type dialect struct{}

func (dialect) Name() string { return "mysql" }

func (dialect) PrimaryKey() string { return "BIGINT PRIMARY KEY AUTO_INCREMENT" }

func (dialect) BeginTx(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
	return db.BeginTx(ctx, nil)
}

// PrepareDDL drops the IF NOT EXISTS clause from index creation, which MySQL
// does not accept; re-creation is tolerated through IgnorableDDLError.
func (dialect) PrepareDDL(stmt string) string {
	if strings.HasPrefix(stmt, "CREATE INDEX IF NOT EXISTS") {
		return strings.Replace(stmt, "CREATE INDEX IF NOT EXISTS", "CREATE INDEX", 1)
	}
	return stmt
}

func (dialect) IgnorableDDLError(err error) bool {
	var myErr *gomysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == errDuplicateKeyName
}

// Open connects with a go-sql-driver DSN (user:pass@tcp(host:port)/dbname)
// and applies the schema. ParseTime is forced on so timestamp columns scan
// into time.Time.
func Open(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	if err := sqlstore.Migrate(ctx, db, dialect{}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sqlstore.New(db, dialect{}), nil
}
