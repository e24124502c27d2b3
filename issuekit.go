// Package issuekit provides a minimal public API for embedding the tracker
// in other Go programs.
//
// It exports the domain types, the lifecycle service that orchestrates every
// mutation, and constructors for the storage backends. Anything not exported
// here is an internal implementation detail.
package issuekit

import (
	"context"

	"github.com/edavis10/issuekit/internal/lifecycle"
	"github.com/edavis10/issuekit/internal/storage"
	"github.com/edavis10/issuekit/internal/storage/mysql"
	"github.com/edavis10/issuekit/internal/storage/sqlite"
	"github.com/edavis10/issuekit/internal/types"
)

// Core types for working with issues
type (
	Issue    = types.Issue
	Project  = types.Project
	Tracker  = types.Tracker
	Status   = types.Status
	Priority = types.Priority
	User     = types.User
	Relation = types.Relation
	Journal  = types.Journal
	Date     = types.Date
)

// Relation type constants
const (
	TypeRelates    = types.TypeRelates
	TypeDuplicates = types.TypeDuplicates
	TypeBlocks     = types.TypeBlocks
	TypePrecedes   = types.TypePrecedes
	TypeFollows    = types.TypeFollows
)

// Service orchestrates issue mutations: create, update, move, copy and
// relation changes. Every operation is transactional.
type Service = lifecycle.Service

// Edit is one attribute change-set submitted to Create or Update.
type Edit = lifecycle.Edit

// MoveOptions controls MoveOrCopy.
type MoveOptions = lifecycle.MoveOptions

// Storage is the persistence contract the service runs over.
type Storage = storage.Store

// Sentinel errors callers may test with errors.Is.
var (
	ErrNotFound         = storage.ErrNotFound
	ErrStaleObject      = storage.ErrStaleObject
	ErrPermissionDenied = lifecycle.ErrPermissionDenied
)

// NewService builds a lifecycle service over the given storage.
func NewService(store Storage) *Service {
	return lifecycle.New(store)
}

// OpenSQLite opens (and migrates) a SQLite tracker database.
func OpenSQLite(ctx context.Context, path string) (Storage, error) {
	return sqlite.Open(ctx, path)
}

// OpenMySQL opens (and migrates) a MySQL tracker database.
func OpenMySQL(ctx context.Context, dsn string) (Storage, error) {
	return mysql.Open(ctx, dsn)
}
