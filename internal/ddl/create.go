// Package ddl defines a small, backend-agnostic model for SQL DDL, derives
// it from parse columns, and renders CREATE TABLE statements.
//
// Rendering is parameterized by a Dialect so that backends only supply
// identifier quoting and type mapping; the statement shape is shared.
package ddl

import (
	"fmt"
	"sort"
	"strings"

	"ingest/internal/schema"
	"ingest/internal/transformer/builtin"
)

// Dialect adapts rendering to a SQL backend.
type Dialect struct {
	// Quote quotes a single identifier segment.
	Quote func(id string) string

	// MapType maps a column type onto a SQL type.
	MapType func(t schema.Type) string

	// IfNotExists adds IF NOT EXISTS to CREATE TABLE.
	IfNotExists bool
}

// QuoteDouble quotes an identifier with double quotes, doubling embedded
// quotes. Postgres and SQLite both accept this form.
func QuoteDouble(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// QuoteFQN quotes each segment of a possibly schema-qualified name.
// Empty segments are dropped.
func QuoteFQN(fqn string, quote func(string) string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, quote(p))
	}
	return strings.Join(out, ".")
}

// FromColumns derives a table definition from parse columns. Column names
// are normalized into SQL-safe identifiers (see builtin.NormalizeNames);
// the returned mapping lists, per column, the normalized name.
// All columns are nullable: unparseable values coerce to NULL.
func FromColumns(fqn string, cols []schema.Column, mapType func(schema.Type) string) (TableDef, []string) {
	names := builtin.NormalizeNames(schema.Names(cols))
	td := TableDef{FQN: fqn, Columns: make([]ColumnDef, len(cols))}
	for i, c := range cols {
		td.Columns[i] = ColumnDef{
			Name:     names[i],
			SQLType:  mapType(c.Type),
			Nullable: true,
			Source:   c.Name,
			Type:     c.Type,
		}
	}
	return td, td.Names()
}

// BuildCreateTableSQL renders a CREATE TABLE statement for t in dialect d.
//
// Rules:
//   - t.FQN must be non-empty and t must have at least one column.
//   - Each column must have a non-empty Name and SQLType.
//   - A column renders as <name> <type> [NOT NULL] [DEFAULT <expr>].
//     Primary-key columns are always NOT NULL.
//   - Primary-key columns render as a trailing PRIMARY KEY clause, sorted
//     for determinism.
func BuildCreateTableSQL(t TableDef, d Dialect) (string, error) {
	quote := d.Quote
	if quote == nil {
		quote = QuoteDouble
	}

	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns)+1)
	var pks []string

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("ddl: column %s missing SQLType", name)
		}

		var sb strings.Builder
		sb.WriteString(quote(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable || c.PrimaryKey {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, quote(name))
		}
	}

	if len(pks) > 0 {
		sort.Strings(pks)
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	create := "CREATE TABLE "
	if d.IfNotExists {
		create += "IF NOT EXISTS "
	}
	return fmt.Sprintf("%s%s (\n  %s\n);", create, QuoteFQN(fqn, quote), strings.Join(cols, ",\n  ")), nil
}
