// Package schema defines the column model shared by inference, coercion and
// the storage sinks.
//
// A column's Type is a closed enumeration. Adding a type means extending the
// constants below, the name table, and the coercion switch in
// internal/transformer; nothing dispatches on free-form strings.
package schema

import (
	"fmt"
	"strings"
)

// Type is the logical type of a column.
type Type uint8

const (
	TypeString Type = iota
	TypeText
	TypeBool
	TypeInt
	TypeFloat
	TypeDatetime
	TypeMultiple
	TypeEmail
	TypeLink
	TypeObject
)

var typeNames = [...]string{
	TypeString:   "string",
	TypeText:     "text",
	TypeBool:     "bool",
	TypeInt:      "int",
	TypeFloat:    "float",
	TypeDatetime: "datetime",
	TypeMultiple: "multiple",
	TypeEmail:    "email",
	TypeLink:     "link",
	TypeObject:   "object",
}

// Types lists every known type in declaration order.
func Types() []Type {
	out := make([]Type, len(typeNames))
	for i := range typeNames {
		out[i] = Type(i)
	}
	return out
}

// String returns the wire name of t ("string", "bool", ...).
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Valid reports whether t is one of the declared types.
func (t Type) Valid() bool { return int(t) < len(typeNames) }

// ParseType resolves a wire name into a Type. Matching is case-insensitive and
// ignores surrounding whitespace.
func ParseType(s string) (Type, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range typeNames {
		if n == name {
			return Type(i), nil
		}
	}
	return TypeString, fmt.Errorf("schema: unknown column type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("schema: invalid column type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Column describes one column of a parse run. Columns is only used for
// TypeObject and lists the nested columns of the object.
type Column struct {
	Name    string   `json:"name"`
	Type    Type     `json:"type"`
	Columns []Column `json:"columns,omitempty"`
}

// Names returns the column names in order.
func Names(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// Clone returns a deep copy of cols so callers can hand columns to a run
// without sharing backing arrays.
func Clone(cols []Column) []Column {
	if cols == nil {
		return nil
	}
	out := make([]Column, len(cols))
	for i, c := range cols {
		out[i] = Column{Name: c.Name, Type: c.Type, Columns: Clone(c.Columns)}
	}
	return out
}

// Validate checks that every column has a name and a known type, and that
// names are unique among siblings.
func Validate(cols []Column) error {
	seen := make(map[string]struct{}, len(cols))
	for i, c := range cols {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("schema: column %d has an empty name", i)
		}
		if !c.Type.Valid() {
			return fmt.Errorf("schema: column %q has invalid type %d", c.Name, uint8(c.Type))
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("schema: duplicate column name %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		if len(c.Columns) > 0 {
			if c.Type != TypeObject {
				return fmt.Errorf("schema: column %q has nested columns but type %s", c.Name, c.Type)
			}
			if err := Validate(c.Columns); err != nil {
				return fmt.Errorf("schema: column %q: %w", c.Name, err)
			}
		}
	}
	return nil
}
