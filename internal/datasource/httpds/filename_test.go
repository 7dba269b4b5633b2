package httpds

import (
	"strings"
	"testing"
)

func TestNameFromURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want string
	}{
		{"https://example.com/exports/vehicles.csv.gz", "vehicles.csv.gz"},
		{"https://example.com/exports/my%20file.csv", "my_file.csv"},
		{"https://example.com/?q=hello+world&lang=en", "q_hello_world_lang_en"},
	}
	for _, c := range cases {
		if got := NameFromURL(c.raw); got != c.want {
			t.Fatalf("NameFromURL(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestNameFromURL_FallsBackToHash(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"://not a url", "https://example.com/"} {
		got := NameFromURL(raw)
		if !strings.HasPrefix(got, "url_") {
			t.Fatalf("NameFromURL(%q) = %q, want hash name", raw, got)
		}
		if got != NameFromURL(raw) {
			t.Fatalf("NameFromURL(%q) not stable", raw)
		}
	}
}
