// Package transformer coerces raw records into typed rows against a frozen
// column list.
//
// Compile builds a per-column plan once; Plan.Coerce then runs one closure
// per column without re-dispatching on the type. Coercion never fails a row:
// a value that cannot be represented becomes nil and yields a warning.
package transformer

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"ingest/internal/schema"
	"ingest/internal/transformer/builtin"
	"ingest/pkg/records"
)

// Row maps column names to typed values. Every column of the plan is present;
// missing or null input yields nil.
type Row map[string]any

// Config carries the value policies for a run.
type Config struct {
	Nulls builtin.NullPolicy

	// ToBool overrides the boolean vocabulary; nil means builtin.ParseBool.
	ToBool builtin.BoolFunc

	// ListSeparator splits text for multiple columns; empty means ",".
	ListSeparator string
}

// coerceFunc converts one non-null raw value. ok=false means the value was
// not representable and the caller records a warning.
type coerceFunc func(v any) (out any, ok bool)

type colPlan struct {
	col    schema.Column
	typed  bool // empty text is null for every type but the text-like ones
	coerce coerceFunc
	nested *Plan // object columns with declared members
}

// Plan is a compiled coercion plan. It is immutable and safe for concurrent
// use.
type Plan struct {
	cols   []colPlan
	isNull func(any) bool
}

// Compile builds a Plan for columns. Columns are copied; the caller's slice
// is not retained.
func Compile(columns []schema.Column, cfg Config) (*Plan, error) {
	if cfg.ToBool == nil {
		cfg.ToBool = builtin.ParseBool
	}
	if cfg.ListSeparator == "" {
		cfg.ListSeparator = ","
	}

	p := &Plan{
		cols:   make([]colPlan, len(columns)),
		isNull: cfg.Nulls.Func(),
	}
	for i, c := range schema.Clone(columns) {
		fn, err := compileColumn(c, cfg)
		if err != nil {
			return nil, err
		}
		p.cols[i] = colPlan{col: c, typed: !textLike(c.Type), coerce: fn}
		if c.Type == schema.TypeObject && len(c.Columns) > 0 {
			if p.cols[i].nested, err = Compile(c.Columns, cfg); err != nil {
				return nil, fmt.Errorf("column %q: %w", c.Name, err)
			}
		}
	}
	return p, nil
}

func textLike(t schema.Type) bool {
	switch t {
	case schema.TypeString, schema.TypeText, schema.TypeEmail, schema.TypeLink:
		return true
	}
	return false
}

// compileColumn selects the coercion for one column type. Adding a Type
// means adding a case here.
func compileColumn(c schema.Column, cfg Config) (coerceFunc, error) {
	switch c.Type {
	case schema.TypeString, schema.TypeText, schema.TypeEmail, schema.TypeLink:
		return func(v any) (any, bool) { return builtin.Text(v) }, nil

	case schema.TypeBool:
		toBool := cfg.ToBool
		return func(v any) (any, bool) {
			switch t := v.(type) {
			case bool:
				return t, true
			case string:
				return toBool(t)
			}
			return nil, false
		}, nil

	case schema.TypeInt:
		return func(v any) (any, bool) { return builtin.ToInt(v) }, nil

	case schema.TypeFloat:
		return func(v any) (any, bool) { return builtin.ToFloat(v) }, nil

	case schema.TypeDatetime:
		return func(v any) (any, bool) {
			s, ok := v.(string)
			if !ok {
				return nil, false
			}
			return builtin.ParseDatetime(s)
		}, nil

	case schema.TypeMultiple:
		sep := cfg.ListSeparator
		return func(v any) (any, bool) { return builtin.SplitMultiple(v, sep) }, nil

	case schema.TypeObject:
		return decodeObject, nil
	}
	return nil, fmt.Errorf("transformer: column %q has unsupported type %s", c.Name, c.Type)
}

// Columns returns a copy of the plan's columns.
func (p *Plan) Columns() []schema.Column {
	out := make([]schema.Column, len(p.cols))
	for i, c := range p.cols {
		out[i] = c.col
	}
	return schema.Clone(out)
}

// Coerce converts rec into a Row. Fields outside the plan are ignored and
// absent fields become nil silently.
func (p *Plan) Coerce(rec records.Record) (Row, []string) {
	return p.coerceFields(rec.Fields, fmt.Sprintf("Row %d", rec.Index+1))
}

// CoerceMap converts an already-decoded object. where prefixes warnings.
func (p *Plan) CoerceMap(fields map[string]any, where string) (Row, []string) {
	return p.coerceFields(fields, where)
}

func (p *Plan) coerceFields(fields map[string]any, where string) (Row, []string) {
	row := make(Row, len(p.cols))
	var warnings []string
	for _, c := range p.cols {
		v, ok := fields[c.col.Name]
		if !ok || p.isNull(v) {
			row[c.col.Name] = nil
			continue
		}
		if s, isText := v.(string); isText && s == "" && c.typed {
			row[c.col.Name] = nil
			continue
		}
		out, ok := c.coerce(v)
		if !ok {
			row[c.col.Name] = nil
			if where != "" {
				warnings = append(warnings, unparseable(where, c.col, v))
			}
			continue
		}
		if c.nested != nil {
			nestedWhere := ""
			if where != "" {
				nestedWhere = where + "." + c.col.Name
			}
			sub, w := c.nested.coerceFields(out.(map[string]any), nestedWhere)
			warnings = append(warnings, w...)
			out = map[string]any(sub)
		}
		row[c.col.Name] = out
	}
	return row, warnings
}

// decodeObject accepts a decoded object or text holding a JSON object.
func decodeObject(v any) (any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(strings.TrimSpace(s), "{") {
		return nil, false
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, false
	}
	return m, true
}

func unparseable(where string, c schema.Column, v any) string {
	s, ok := builtin.Text(v)
	if !ok {
		s = fmt.Sprintf("%v", v)
	}
	if len(s) > 64 {
		s = s[:64] + "..."
	}
	return fmt.Sprintf("%s: cannot parse %q as %s for column %q", where, s, c.Type, c.Name)
}
