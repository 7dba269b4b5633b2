package csv

import (
	"bytes"
	"math"
)

// DefaultDelimitersToGuess are the candidates tried when no delimiter is set.
var DefaultDelimitersToGuess = []string{",", "\t", "|", ";", "\x1E", "\x1F"}

const (
	defaultDelimiter = ","
	previewRows      = 10
	minAvgFields     = 1.99

	warnUndetectableDelimiter = "Unable to auto-detect delimiting character; defaulted to ','"
)

// GuessLinebreak picks the line terminator used by sample. Quoted sections
// are ignored so embedded newlines do not vote.
func GuessLinebreak(sample []byte, quote byte) string {
	s := stripQuoted(sample, quote)

	r := bytes.IndexByte(s, '\r')
	if r < 0 {
		return "\n"
	}
	if n := bytes.IndexByte(s, '\n'); n >= 0 && n < r {
		return "\n"
	}

	parts := bytes.Split(s, []byte{'\r'})
	withN := 0
	for _, p := range parts {
		if len(p) > 0 && p[0] == '\n' {
			withN++
		}
	}
	if float64(withN) >= float64(len(parts))/2 {
		return "\r\n"
	}
	return "\r"
}

func stripQuoted(b []byte, quote byte) []byte {
	out := make([]byte, 0, len(b))
	in := false
	for _, c := range b {
		if c == quote {
			in = !in
			continue
		}
		if !in {
			out = append(out, c)
		}
	}
	return out
}

// DelimiterGuess is the outcome of GuessDelimiter.
type DelimiterGuess struct {
	Delimiter  string
	Successful bool
}

// GuessDelimiter previews up to ten rows of sample with every candidate and
// keeps the one that yields a stable field count above one. Ties on the
// field-count delta go to the candidate producing more fields.
func GuessDelimiter(sample []byte, candidates []string, newline string, quote, escape byte, comment string, skipEmpty bool) DelimiterGuess {
	if len(candidates) == 0 {
		candidates = DefaultDelimitersToGuess
	}

	var (
		best      string
		bestDelta = math.MaxInt
		maxAvg    = math.Inf(-1)
	)
	for _, delim := range candidates {
		if delim == "" {
			continue
		}
		rows := tokenizeSample(sample, delim, newline, quote, escape, comment, previewRows)

		delta, total, empty := 0, 0, 0
		prev := -1
		for _, r := range rows {
			if skipEmpty && r.empty() {
				empty++
				continue
			}
			n := len(r.fields)
			total += n
			if prev < 0 {
				prev = n
				continue
			}
			if n > 0 {
				delta += abs(n - prev)
				prev = n
			}
		}
		counted := len(rows) - empty
		if counted <= 0 {
			continue
		}
		avg := float64(total) / float64(counted)

		if delta <= bestDelta && avg > maxAvg && avg > minAvgFields {
			best, bestDelta, maxAvg = delim, delta, avg
		}
	}

	if best == "" {
		return DelimiterGuess{Delimiter: defaultDelimiter}
	}
	return DelimiterGuess{Delimiter: best, Successful: true}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
