package csv

import "bytes"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// bomLen returns the length of a leading UTF-8 BOM in b, or 0.
func bomLen(b []byte) int {
	if bytes.HasPrefix(b, utf8BOM) {
		return len(utf8BOM)
	}
	return 0
}

// StripHeaderBOM removes a UTF-8 BOM from the first header cell if present.
func StripHeaderBOM(headers []string) []string {
	if len(headers) == 0 {
		return headers
	}
	if n := bomLen([]byte(headers[0])); n > 0 {
		headers[0] = headers[0][n:]
	}
	return headers
}
