// Package probe infers a column schema from a bounded sample of raw records.
//
// For every key, in order of first appearance, the non-null sample values are
// checked against the candidate types in a fixed priority order and the first
// type that accepts every value wins:
//
//	bool → int → float → datetime → email → multiple → object → string
//
// Empty strings are treated as absent. A key with no usable values is a
// string column.
package probe

import (
	"sort"

	"github.com/goccy/go-json"

	"ingest/internal/schema"
	"ingest/internal/transformer/builtin"
	"ingest/pkg/records"
)

// DefaultSampleSize is the number of leading records used for inference.
const DefaultSampleSize = 100

// GuessColumns infers columns from sample. toBool overrides the boolean
// vocabulary; nil means builtin.ParseBool.
func GuessColumns(sample []records.Record, nulls builtin.NullPolicy, toBool builtin.BoolFunc) []schema.Column {
	if toBool == nil {
		toBool = builtin.ParseBool
	}
	g := guesser{isNull: nulls.Func(), toBool: toBool}

	keys := keyOrder(sample)
	cols := make([]schema.Column, 0, len(keys))
	for _, k := range keys {
		cols = append(cols, g.column(k, valuesOf(sample, k)))
	}
	return cols
}

// keyOrder lists keys by first appearance. A key repeated within one record
// (duplicate CSV header names) is listed as often as it repeats.
func keyOrder(sample []records.Record) []string {
	var order []string
	listed := make(map[string]int)
	for _, rec := range sample {
		inRec := make(map[string]int, len(rec.Keys))
		for _, k := range rec.Keys {
			inRec[k]++
			if inRec[k] > listed[k] {
				listed[k]++
				order = append(order, k)
			}
		}
	}
	return order
}

func valuesOf(sample []records.Record, key string) []any {
	out := make([]any, 0, len(sample))
	for _, rec := range sample {
		if v, ok := rec.Fields[key]; ok {
			out = append(out, v)
		}
	}
	return out
}

type guesser struct {
	isNull func(any) bool
	toBool builtin.BoolFunc
}

func (g guesser) column(name string, raw []any) schema.Column {
	vals := g.present(raw)
	col := schema.Column{Name: name, Type: g.classify(vals)}
	if col.Type == schema.TypeObject {
		col.Columns = g.nested(vals)
	}
	return col
}

// present drops nulls and empty strings.
func (g guesser) present(raw []any) []any {
	out := raw[:0:0]
	for _, v := range raw {
		if g.isNull(v) {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func (g guesser) classify(vals []any) schema.Type {
	if len(vals) == 0 {
		return schema.TypeString
	}
	switch {
	case allMatch(vals, g.isBool):
		return schema.TypeBool
	case allMatch(vals, isInt):
		return schema.TypeInt
	case allMatch(vals, isFloat):
		return schema.TypeFloat
	case allMatch(vals, isDatetime):
		return schema.TypeDatetime
	case allMatch(vals, isEmail):
		return schema.TypeEmail
	case allMatch(vals, isList):
		return schema.TypeMultiple
	case allMatch(vals, isObject):
		return schema.TypeObject
	default:
		return schema.TypeString
	}
}

// nested infers the member columns of object values. Decoded objects carry no
// member order, so nested keys are sorted by name.
func (g guesser) nested(vals []any) []schema.Column {
	sample := make([]records.Record, 0, len(vals))
	for i, v := range vals {
		m := v.(map[string]any)
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sample = append(sample, records.Record{Index: i, Keys: keys, Fields: m})
	}
	keys := keyOrder(sample)
	sort.Strings(keys)

	cols := make([]schema.Column, 0, len(keys))
	for _, k := range keys {
		cols = append(cols, g.column(k, valuesOf(sample, k)))
	}
	return cols
}

// allMatch reports whether every value satisfies fn.
func allMatch(vals []any, fn func(any) bool) bool {
	for _, v := range vals {
		if !fn(v) {
			return false
		}
	}
	return true
}

func (g guesser) isBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return true
	case string:
		_, ok := g.toBool(t)
		return ok
	}
	return false
}

func isInt(v any) bool {
	switch t := v.(type) {
	case string:
		return builtin.IsInt(t)
	case json.Number, float64:
		_, ok := builtin.ToInt(t)
		return ok
	}
	return false
}

func isFloat(v any) bool {
	switch t := v.(type) {
	case string:
		return builtin.IsFloat(t)
	case json.Number, float64:
		_, ok := builtin.ToFloat(t)
		return ok
	}
	return false
}

func isDatetime(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, ok = builtin.ParseDatetime(s)
	return ok
}

func isEmail(v any) bool {
	s, ok := v.(string)
	return ok && builtin.IsEmail(s)
}

func isList(v any) bool {
	_, ok := v.([]any)
	return ok
}

func isObject(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}
