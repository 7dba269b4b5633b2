package csv

import (
	"bytes"
	"errors"
	"io"
)

const chunkSize = 64 * 1024

const (
	warnTrailingQuote = "Trailing quote on quoted field is malformed"
	warnUnterminated  = "Quoted field unterminated"
)

// scanner is a refillable window over an io.Reader that tracks the absolute
// number of bytes consumed. The tokenizer needs multi-byte lookahead for
// delimiters and linebreaks, which bufio.Reader only offers through Peek.
type scanner struct {
	r    io.Reader
	buf  []byte
	pos  int
	base int64 // absolute offset of buf[0]
	eof  bool
	err  error
}

func newScanner(r io.Reader) *scanner {
	return &scanner{r: r, buf: make([]byte, 0, chunkSize)}
}

// fill makes at least n unread bytes available. It returns false when the
// source ended (or failed) first; s.err holds a non-EOF failure.
func (s *scanner) fill(n int) bool {
	for len(s.buf)-s.pos < n {
		if s.eof || s.err != nil {
			return false
		}
		if s.pos > 0 && s.pos >= len(s.buf)/2 {
			k := copy(s.buf, s.buf[s.pos:])
			s.base += int64(s.pos)
			s.buf = s.buf[:k]
			s.pos = 0
		}
		if cap(s.buf)-len(s.buf) < chunkSize {
			grown := make([]byte, len(s.buf), 2*cap(s.buf)+chunkSize)
			copy(grown, s.buf)
			s.buf = grown
		}
		m, err := s.r.Read(s.buf[len(s.buf):cap(s.buf)])
		s.buf = s.buf[:len(s.buf)+m]
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.eof = true
			} else {
				s.err = err
			}
		}
	}
	return true
}

func (s *scanner) offset() int64 { return s.base + int64(s.pos) }

func (s *scanner) advance(n int) { s.pos += n }

// hasPrefixAt reports whether the unread bytes starting at rel begin with p.
func (s *scanner) hasPrefixAt(rel int, p string) bool {
	if p == "" || !s.fill(rel+len(p)) {
		return false
	}
	return string(s.buf[s.pos+rel:s.pos+rel+len(p)]) == p
}

// peek returns everything that is buffered and unread, reading until at least
// n bytes are available or the source ends.
func (s *scanner) peek(n int) []byte {
	s.fill(n)
	end := len(s.buf)
	if end-s.pos > n {
		end = s.pos + n
	}
	return s.buf[s.pos:end]
}

type fieldEnd uint8

const (
	endDelim fieldEnd = iota
	endLine
	endEOF
)

// row is one tokenized line before header mapping.
type row struct {
	fields   []string
	blank    bool // physical line with no content at all
	warnings []string
}

// empty reports whether the row is a single empty field, the shape produced by
// an empty line.
func (r row) empty() bool { return len(r.fields) == 1 && r.fields[0] == "" }

// tokenizer splits scanner input into rows for a fixed dialect.
type tokenizer struct {
	s       *scanner
	delim   string
	newline string
	quote   byte
	escape  byte
	comment string
	scratch []byte
}

// next reads the next row. ok is false at end of input; err is a read failure.
func (t *tokenizer) next() (r row, ok bool, err error) {
	for {
		if !t.s.fill(1) {
			return row{}, false, t.s.err
		}
		if t.comment != "" && t.s.hasPrefixAt(0, t.comment) {
			t.skipLine()
			continue
		}
		if t.s.hasPrefixAt(0, t.newline) {
			t.s.advance(len(t.newline))
			return row{fields: []string{""}, blank: true}, true, nil
		}
		break
	}

	for {
		field, end := t.field(&r)
		r.fields = append(r.fields, field)
		if t.s.err != nil {
			return r, false, t.s.err
		}
		if end != endDelim {
			return r, true, nil
		}
	}
}

func (t *tokenizer) skipLine() {
	for t.s.fill(1) {
		if t.s.hasPrefixAt(0, t.newline) {
			t.s.advance(len(t.newline))
			return
		}
		t.s.advance(1)
	}
}

func (t *tokenizer) field(r *row) (string, fieldEnd) {
	if !t.s.fill(1) {
		return "", endEOF
	}
	if t.s.buf[t.s.pos] == t.quote {
		t.s.advance(1)
		return t.quoted(r)
	}
	return t.unquoted()
}

func (t *tokenizer) unquoted() (string, fieldEnd) {
	t.scratch = t.scratch[:0]
	d0, n0 := t.delim[0], t.newline[0]
	for {
		if !t.s.fill(1) {
			return string(t.scratch), endEOF
		}
		avail := t.s.buf[t.s.pos:]
		i := 0
		for i < len(avail) && avail[i] != d0 && avail[i] != n0 {
			i++
		}
		t.scratch = append(t.scratch, avail[:i]...)
		t.s.advance(i)
		if i == len(avail) {
			continue
		}
		switch {
		case t.s.hasPrefixAt(0, t.delim):
			t.s.advance(len(t.delim))
			return string(t.scratch), endDelim
		case t.s.hasPrefixAt(0, t.newline):
			t.s.advance(len(t.newline))
			return string(t.scratch), endLine
		}
		t.scratch = append(t.scratch, t.s.buf[t.s.pos])
		t.s.advance(1)
	}
}

func (t *tokenizer) quoted(r *row) (string, fieldEnd) {
	t.scratch = t.scratch[:0]
	for {
		if !t.s.fill(1) {
			if t.s.err == nil {
				r.warnings = append(r.warnings, warnUnterminated)
			}
			return string(t.scratch), endEOF
		}
		c := t.s.buf[t.s.pos]

		if c == t.escape && t.escape != t.quote {
			if t.s.fill(2) && t.s.buf[t.s.pos+1] == t.quote {
				t.scratch = append(t.scratch, t.quote)
				t.s.advance(2)
				continue
			}
		}
		if c != t.quote {
			t.scratch = append(t.scratch, c)
			t.s.advance(1)
			continue
		}

		if t.escape == t.quote && t.s.fill(2) && t.s.buf[t.s.pos+1] == t.quote {
			t.scratch = append(t.scratch, t.quote)
			t.s.advance(2)
			continue
		}

		// Closing quote candidate; spaces may sit between it and the delimiter.
		j := 1
		for t.s.fill(j+1) && isBlank(t.s.buf[t.s.pos+j]) {
			j++
		}
		switch {
		case !t.s.fill(j + 1):
			t.s.advance(j)
			return string(t.scratch), endEOF
		case t.s.hasPrefixAt(j, t.delim):
			t.s.advance(j + len(t.delim))
			return string(t.scratch), endDelim
		case t.s.hasPrefixAt(j, t.newline):
			t.s.advance(j + len(t.newline))
			return string(t.scratch), endLine
		}

		r.warnings = append(r.warnings, warnTrailingQuote)
		t.scratch = append(t.scratch, t.quote)
		t.s.advance(1)
	}
}

func isBlank(c byte) bool { return c == ' ' || c == '\t' }

// tokenizeSample splits an in-memory sample into at most max rows.
func tokenizeSample(sample []byte, delim, newline string, quote, escape byte, comment string, max int) []row {
	t := &tokenizer{
		s:       newScanner(bytes.NewReader(sample)),
		delim:   delim,
		newline: newline,
		quote:   quote,
		escape:  escape,
		comment: comment,
	}
	var out []row
	for len(out) < max {
		r, ok, _ := t.next()
		if !ok {
			if len(r.fields) > 0 {
				out = append(out, r)
			}
			break
		}
		out = append(out, r)
	}
	return out
}
