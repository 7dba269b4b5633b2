package postgres

import (
	"context"
	"fmt"

	"ingest/internal/ddl"
	"ingest/internal/schema"
	"ingest/internal/storage"
)

// Dialect renders Postgres DDL: double-quoted identifiers and
// CREATE TABLE IF NOT EXISTS.
var Dialect = ddl.Dialect{Quote: ddl.QuoteDouble, MapType: MapType, IfNotExists: true}

// MapType maps a column type onto a Postgres type. Lists and objects are
// stored as JSONB.
func MapType(t schema.Type) string {
	switch t {
	case schema.TypeBool:
		return "BOOLEAN"
	case schema.TypeInt:
		return "BIGINT"
	case schema.TypeFloat:
		return "DOUBLE PRECISION"
	case schema.TypeDatetime:
		return "TIMESTAMPTZ"
	case schema.TypeMultiple, schema.TypeObject:
		return "JSONB"
	default:
		return "TEXT"
	}
}

// EnsureTable creates table for cols unless it exists and returns the SQL
// column names.
func EnsureTable(ctx context.Context, repo storage.Repository, table string, cols []schema.Column) ([]string, error) {
	td, names := ddl.FromColumns(table, cols, MapType)
	stmt, err := ddl.BuildCreateTableSQL(td, Dialect)
	if err != nil {
		return nil, fmt.Errorf("postgres ddl: %w", err)
	}
	if err := repo.Exec(ctx, stmt); err != nil {
		return nil, fmt.Errorf("postgres ddl: apply: %w", err)
	}
	return names, nil
}
