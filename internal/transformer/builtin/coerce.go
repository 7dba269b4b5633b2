// Package builtin holds the value-level parsers shared by column inference and
// the coercion plan. Inference and coercion must agree on what a value means,
// so both call into this package instead of keeping their own rules.
package builtin

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// BoolFunc maps text to a boolean. ok is false when s is not a boolean.
type BoolFunc func(s string) (value bool, ok bool)

// ParseBool is the default BoolFunc: case-insensitive t/true/yes and
// f/false/no. Digits are not booleans so 0/1 columns stay integers.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "t", "true", "yes":
		return true, true
	case "f", "false", "no":
		return false, true
	default:
		return false, false
	}
}

// IsInt reports whether s is a base-10 integer that fits in int64.
func IsInt(s string) bool {
	_, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return err == nil
}

// IsFloat reports whether s is a finite decimal or scientific number.
func IsFloat(s string) bool {
	_, ok := parseFinite(strings.TrimSpace(s))
	return ok
}

func parseFinite(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	// ParseFloat accepts hex floats and digit separators.
	if strings.ContainsAny(s, "xX_pP") {
		return 0, false
	}
	return f, true
}

// ToInt converts text, json.Number or an integral float into int64. Text such
// as "42.0" is accepted when it has no fractional part.
func ToInt(v any) (int64, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if strings.IndexByte(s, '.') >= 0 {
			if f, ok := parseFinite(s); ok {
				return integral(f)
			}
		}
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
		if f, err := t.Float64(); err == nil {
			return integral(f)
		}
	case float64:
		return integral(t)
	case int64:
		return t, true
	case int:
		return int64(t), true
	}
	return 0, false
}

func integral(f float64) (int64, bool) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// ToFloat converts text, json.Number or a Go number into float64.
func ToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case string:
		return parseFinite(strings.TrimSpace(t))
	case json.Number:
		return parseFinite(t.String())
	case float64:
		return t, !math.IsInf(t, 0) && !math.IsNaN(t)
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	}
	return 0, false
}

// isoLayouts are tried in order by ParseDatetime. Zone-less layouts parse as
// UTC. time.Parse accepts fractional seconds after the seconds field even when
// the layout omits them.
var isoLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

var isoPrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// ParseDatetime parses an ISO-8601 date or timestamp.
func ParseDatetime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if !isoPrefix.MatchString(s) {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsEmail reports whether s looks like an email address.
func IsEmail(s string) bool { return emailRe.MatchString(strings.TrimSpace(s)) }

// SplitMultiple turns a list value into strings. Text holding a JSON array is
// decoded; other text is split on sep with blanks dropped. []any values are
// converted element-wise.
func SplitMultiple(v any, sep string) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if e == nil {
				continue
			}
			s, _ := Text(e)
			out = append(out, s)
		}
		return out, true
	case string:
		s := strings.TrimSpace(t)
		if strings.HasPrefix(s, "[") {
			var arr []any
			if err := json.Unmarshal([]byte(s), &arr); err == nil {
				return SplitMultiple(arr, sep)
			}
		}
		if sep == "" {
			sep = ","
		}
		parts := strings.Split(s, sep)
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// Text renders a raw value as text. Objects and arrays are rendered as JSON.
func Text(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case int:
		return strconv.Itoa(t), true
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
	return "", false
}
