package sqlite

import (
	"context"
	"fmt"

	"ingest/internal/ddl"
	"ingest/internal/schema"
	"ingest/internal/storage"
)

// Dialect renders SQLite DDL.
var Dialect = ddl.Dialect{Quote: ddl.QuoteDouble, MapType: MapType, IfNotExists: true}

// MapType maps a column type onto a SQLite storage class. Booleans are
// stored as INTEGER 0/1; datetimes, lists and objects as TEXT.
func MapType(t schema.Type) string {
	switch t {
	case schema.TypeBool, schema.TypeInt:
		return "INTEGER"
	case schema.TypeFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

// EnsureTable creates table for cols unless it exists.
func EnsureTable(ctx context.Context, repo storage.Repository, table string, cols []schema.Column) ([]string, error) {
	td, names := ddl.FromColumns(table, cols, MapType)
	stmt, err := ddl.BuildCreateTableSQL(td, Dialect)
	if err != nil {
		return nil, fmt.Errorf("sqlite ddl: %w", err)
	}
	if err := repo.Exec(ctx, stmt); err != nil {
		return nil, fmt.Errorf("sqlite ddl: apply: %w", err)
	}
	return names, nil
}
