package ddl

import "ingest/internal/schema"

// ColumnDef is one column of a TableDef. Name is the unquoted SQL
// identifier; Source and Type record the parse column it was derived from
// and are empty for hand-built definitions.
type ColumnDef struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Default    string // raw SQL expression

	Source string
	Type   schema.Type
}

// TableDef is a table name, possibly schema-qualified, and its columns in
// insert order.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// Names returns the SQL column names in order.
func (t TableDef) Names() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}
