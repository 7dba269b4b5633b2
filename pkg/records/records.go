// Package records defines the raw record shape shared by the tokenizers, the
// column prober and the coercion plan.
package records

// Record is one logical row read from a source, before any type coercion.
//
// Fields holds raw values keyed by column name: strings for CSV input and
// decoded JSON values (string, json.Number, bool, []any, map[string]any) for
// NDJSON input. A nil value means null. Keys lists the field names in source
// order; for CSV it is the header slice shared by every record of a run.
type Record struct {
	// Index is the zero-based position of the record among emitted records.
	Index int

	Keys   []string
	Fields map[string]any

	// Warnings are tokenizer warnings raised while reading this record (and
	// any skipped input preceding it).
	Warnings []string

	// Offset is the number of raw bytes consumed through the end of this record.
	Offset int64
}

// Value returns the raw value for key and whether the key was present.
func (r Record) Value(key string) (any, bool) {
	v, ok := r.Fields[key]
	return v, ok
}
