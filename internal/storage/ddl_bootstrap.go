package storage

import (
	"context"
	"fmt"
	"sync"

	"ingest/internal/schema"
)

// DDLBootstrapper creates table (if missing) for cols via repo.Exec and
// returns the SQL column names used for each parse column, in order.
type DDLBootstrapper func(ctx context.Context, repo Repository, table string, cols []schema.Column) ([]string, error)

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDLBootstrapper{}
)

// RegisterDDL registers (or replaces) the DDL bootstrapper for kind.
func RegisterDDL(kind string, fn DDLBootstrapper) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// EnsureTable runs the bootstrapper registered for kind.
func EnsureTable(ctx context.Context, kind string, repo Repository, table string, cols []schema.Column) ([]string, error) {
	ddlMu.RLock()
	fn, ok := ddlFns[kind]
	ddlMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no DDL bootstrapper registered for storage.kind=%q", kind)
	}
	return fn(ctx, repo, table, cols)
}
