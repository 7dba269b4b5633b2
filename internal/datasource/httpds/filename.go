package httpds

import (
	"net/url"
	"path"
	"regexp"
	"strconv"

	"github.com/zeebo/xxh3"
)

// nameCleaner collapses runs of characters that are unsafe in file and table
// names.
var nameCleaner = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// NameFromURL derives a file-like name from a URL. The last path segment is
// preferred so extensions (".csv.gz") survive for compression detection;
// otherwise the cleaned query string; otherwise a hash of the whole URL.
func NameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return hashName(rawURL)
	}
	if base := path.Base(u.Path); base != "." && base != "/" {
		if clean := nameCleaner.ReplaceAllString(base, "_"); clean != "" && clean != "_" {
			return clean
		}
	}
	if clean := nameCleaner.ReplaceAllString(u.RawQuery, "_"); clean != "" && clean != "_" {
		return clean
	}
	return hashName(rawURL)
}

func hashName(s string) string {
	return "url_" + strconv.FormatUint(xxh3.HashString(s), 16)
}
