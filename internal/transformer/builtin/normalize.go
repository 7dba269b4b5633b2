package builtin

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName converts arbitrary header text into a lowercase ASCII
// identifier suitable for SQL schemas:
//  1. lowercase
//  2. strip accents (NFD → remove Mn → NFC)
//  3. keep [a-z0-9_]; convert space/dash/dot to underscore; drop others
//  4. fallback to "col" if empty
//  5. prefix "c_" when the name starts with a digit
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	ascii, _, _ := transform.String(t, s)

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "col"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "c_" + name
	}
	return TruncateName(name)
}

// TruncateName keeps identifiers within PostgreSQL's 63-byte limit, returning
// the first 10 and last 53 bytes of longer names.
func TruncateName(s string) string {
	if len(s) > 63 {
		return s[:10] + s[len(s)-53:]
	}
	return s
}

// NormalizeNames applies NormalizeName to every name and disambiguates
// collisions with a numeric suffix, preserving order.
func NormalizeNames(names []string) []string {
	out := make([]string, len(names))
	taken := make(map[string]struct{}, len(names))
	for i, n := range names {
		base := NormalizeName(n)
		name := base
		for k := 2; ; k++ {
			if _, dup := taken[name]; !dup {
				break
			}
			name = TruncateName(base + "_" + strconv.Itoa(k))
		}
		taken[name] = struct{}{}
		out[i] = name
	}
	return out
}
