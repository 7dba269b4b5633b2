package datasource

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// charsetReader decodes r from the named charset into UTF-8. UTF-8 input is
// returned unchanged (transcoded=false); the CSV reader strips its BOM itself.
func charsetReader(r io.Reader, name string) (out io.Reader, transcoded bool, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return r, false, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, false, fmt.Errorf("charset %q: %w", name, err)
	}
	if enc == unicode.UTF8 || enc == encoding.Nop {
		return r, false, nil
	}
	// A leading BOM overrides the declared charset.
	dec := unicode.BOMOverride(enc.NewDecoder())
	return transform.NewReader(r, dec), true, nil
}
