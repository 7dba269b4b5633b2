package importer

import (
	"fmt"
	"strings"

	"ingest/internal/parser/csv"
	"ingest/internal/probe"
	"ingest/internal/schema"
	"ingest/internal/transformer"
	"ingest/internal/transformer/builtin"
	"ingest/pkg/records"
)

// Format selects the tokenizer.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatNDJSON Format = "ndjson"
)

// ParseFormat maps a user-facing name onto a Format. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv", "tsv":
		return FormatCSV, nil
	case "ndjson", "jsonl", "json":
		return FormatNDJSON, nil
	}
	return "", fmt.Errorf("importer: unknown format %q", s)
}

// Options configures a parse. The zero value parses CSV with a header row,
// skips empty lines, detects the dialect and infers the columns.
type Options struct {
	Format Format

	// CSV dialect. Empty Delimiter and Newline are detected.
	Delimiter         string
	DelimitersToGuess []string
	NoHeader          bool
	KeepEmptyLines    bool
	Newline           string
	Quote             byte
	Escape            byte
	CommentPrefix     string

	// Columns fixes the schema; only these columns are read. Nil means infer.
	Columns []schema.Column

	// Limit stops intake after this many records; 0 means no limit.
	Limit int

	// NullValues replaces the default null tokens. IsNull, when set,
	// replaces the tokens altogether.
	NullValues []string
	IsNull     func(s string) bool

	// ToBoolean overrides the boolean vocabulary for inference and coercion.
	ToBoolean builtin.BoolFunc

	// ListSeparator splits text values of multiple columns; empty means ",".
	ListSeparator string

	// SampleSize bounds the records used for inference. ParseBatched
	// defaults to probe.DefaultSampleSize; ParseWhole infers over every
	// record it keeps when SampleSize is 0.
	SampleSize int

	// SkipDuplicates drops records identical to an earlier one.
	SkipDuplicates bool

	// BytesRead, when set, reports raw input bytes consumed for progress in
	// place of the tokenizer offset. Used for compressed or transcoded input.
	BytesRead func() int64
}

func (o Options) csvConfig() csv.Config {
	cfg := csv.DefaultConfig()
	cfg.Delimiter = o.Delimiter
	cfg.DelimitersToGuess = o.DelimitersToGuess
	cfg.Newline = o.Newline
	cfg.CommentPrefix = o.CommentPrefix
	cfg.Header = !o.NoHeader
	cfg.SkipEmptyLines = !o.KeepEmptyLines
	if o.Quote != 0 {
		cfg.Quote = o.Quote
		cfg.Escape = o.Quote
	}
	if o.Escape != 0 {
		cfg.Escape = o.Escape
	}
	return cfg
}

func (o Options) nullPolicy() builtin.NullPolicy {
	return builtin.NullPolicy{Values: o.NullValues, IsNull: o.IsNull}
}

// plan compiles the coercion plan, inferring columns from sample when none
// were supplied.
func (o Options) plan(sample []records.Record) (*transformer.Plan, error) {
	cols := o.Columns
	if cols == nil {
		cols = probe.GuessColumns(sample, o.nullPolicy(), o.ToBoolean)
	} else if err := schema.Validate(cols); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidColumns, err)
	}
	return transformer.Compile(cols, transformer.Config{
		Nulls:         o.nullPolicy(),
		ToBool:        o.ToBoolean,
		ListSeparator: o.ListSeparator,
	})
}

// ColumnsFromFlags builds a column list from comma-separated names and
// types. Without types every column is a string column; with types the two
// lists must have the same length. Both empty yields nil.
func ColumnsFromFlags(names, types string) ([]schema.Column, error) {
	ns := splitList(names)
	ts := splitList(types)
	if len(ns) == 0 {
		if len(ts) > 0 {
			return nil, fmt.Errorf("importer: %d types given without column names", len(ts))
		}
		return nil, nil
	}
	if len(ts) > 0 && len(ts) != len(ns) {
		return nil, fmt.Errorf("importer: %d column names but %d types", len(ns), len(ts))
	}

	cols := make([]schema.Column, len(ns))
	for i, n := range ns {
		cols[i] = schema.Column{Name: n, Type: schema.TypeString}
		if len(ts) > 0 {
			t, err := schema.ParseType(ts[i])
			if err != nil {
				return nil, fmt.Errorf("importer: column %q: %w", n, err)
			}
			cols[i].Type = t
		}
	}
	if err := schema.Validate(cols); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidColumns, err)
	}
	return cols, nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
