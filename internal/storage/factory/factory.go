// Package factory selects a storage backend by name.
package factory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/edavis10/issuekit/internal/storage"
	"github.com/edavis10/issuekit/internal/storage/mysql"
	"github.com/edavis10/issuekit/internal/storage/sqlite"
)

// OpenFunc opens a backend from its DSN (a file path for sqlite, a driver
// DSN for mysql).
type OpenFunc func(ctx context.Context, dsn string) (storage.Store, error)

var (
	mu       sync.RWMutex
	backends = map[string]OpenFunc{
		"sqlite": func(ctx context.Context, dsn string) (storage.Store, error) {
			return sqlite.Open(ctx, dsn)
		},
		"mysql": func(ctx context.Context, dsn string) (storage.Store, error) {
			return mysql.Open(ctx, dsn)
		},
	}
)

// Register adds a backend. Tests use this to install in-memory fakes.
func Register(name string, open OpenFunc) {
	mu.Lock()
	defer mu.Unlock()
	backends[name] = open
}

// Open opens the named backend.
func Open(ctx context.Context, backend, dsn string) (storage.Store, error) {
	mu.RLock()
	open, ok := backends[backend]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown storage backend %q (available: %v)", backend, Names())
	}
	return open(ctx, dsn)
}

// Names lists the registered backends.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
