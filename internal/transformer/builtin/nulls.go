package builtin

// DefaultNullValues are the textual null tokens used when none are configured.
var DefaultNullValues = []string{"null", "NULL", "Null"}

// NullPolicy decides which raw values are null. A nil value is always null.
// IsNull, when set, replaces the token set entirely.
type NullPolicy struct {
	Values []string
	IsNull func(s string) bool
}

// Func compiles the policy into a predicate over raw values. Non-text values
// other than nil are never null.
func (p NullPolicy) Func() func(v any) bool {
	if p.IsNull != nil {
		custom := p.IsNull
		return func(v any) bool {
			if v == nil {
				return true
			}
			s, ok := v.(string)
			return ok && custom(s)
		}
	}

	vals := p.Values
	if vals == nil {
		vals = DefaultNullValues
	}
	set := make(map[string]struct{}, len(vals))
	for _, s := range vals {
		set[s] = struct{}{}
	}
	return func(v any) bool {
		if v == nil {
			return true
		}
		s, ok := v.(string)
		if !ok {
			return false
		}
		_, null := set[s]
		return null
	}
}
