// Package csv provides streaming CSV tokenization for large inputs.
//
// The Reader detects the dialect (delimiter and linebreak) from a bounded
// lookahead sample, strips a leading UTF-8 BOM, and then emits one
// records.Record per logical row without whole-file buffering. Malformed input
// never aborts the stream: rows are emitted best-effort and the problem is
// recorded as a warning on the row.
package csv

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"ingest/internal/parser"
	"ingest/pkg/records"
)

// DefaultSampleBytes bounds the lookahead used for dialect detection.
const DefaultSampleBytes = 64 * 1024

// Config describes the dialect and framing of a CSV source. Empty Delimiter
// and Newline enable auto-detection.
type Config struct {
	Delimiter         string
	DelimitersToGuess []string
	Newline           string
	Quote             byte
	Escape            byte
	CommentPrefix     string
	Header            bool
	SkipEmptyLines    bool

	// SampleBytes bounds the dialect-detection lookahead; 0 means
	// DefaultSampleBytes.
	SampleBytes int
}

// DefaultConfig returns the settings used when the caller has no opinion:
// header row on, empty lines skipped, double-quote quoting and escaping.
func DefaultConfig() Config {
	return Config{
		Header:         true,
		SkipEmptyLines: true,
		Quote:          '"',
		Escape:         '"',
	}
}

// Reader streams records from CSV input. It implements parser.RecordReader.
// A Reader is not safe for concurrent use.
type Reader struct {
	cfg     Config
	tok     *tokenizer
	dialect parser.Dialect

	header  []string // nil without a header row
	names   []string // positional names when there is no header
	pending []string // warnings waiting for the next emitted record
	index   int
	done    bool
}

var _ parser.RecordReader = (*Reader)(nil)

// NewReader detects the dialect of r and positions the Reader on the first
// data row. The header row, when enabled, is consumed here.
func NewReader(r io.Reader, cfg Config) (*Reader, error) {
	if cfg.Quote == 0 {
		cfg.Quote = '"'
	}
	if cfg.Escape == 0 {
		cfg.Escape = cfg.Quote
	}
	if cfg.SampleBytes <= 0 {
		cfg.SampleBytes = DefaultSampleBytes
	}

	s := newScanner(r)
	if n := bomLen(s.peek(len(utf8BOM))); n > 0 {
		s.advance(n)
	}
	sample := s.peek(cfg.SampleBytes)
	if s.err != nil {
		return nil, fmt.Errorf("csv: read sample: %w", s.err)
	}
	if !s.eof || len(sample) >= cfg.SampleBytes {
		sample = trimPartialLine(sample)
	}

	newline := cfg.Newline
	if newline == "" {
		newline = GuessLinebreak(sample, cfg.Quote)
	}

	var dialectWarnings []string
	delim := cfg.Delimiter
	if delim == "" {
		g := GuessDelimiter(sample, cfg.DelimitersToGuess, newline, cfg.Quote, cfg.Escape, cfg.CommentPrefix, cfg.SkipEmptyLines)
		delim = g.Delimiter
		if !g.Successful {
			dialectWarnings = append(dialectWarnings, warnUndetectableDelimiter)
		}
	}

	rd := &Reader{
		cfg: cfg,
		tok: &tokenizer{
			s:       s,
			delim:   delim,
			newline: newline,
			quote:   cfg.Quote,
			escape:  cfg.Escape,
			comment: cfg.CommentPrefix,
		},
		dialect: parser.Dialect{Delimiter: delim, Linebreak: newline},
	}

	if cfg.Header {
		hdr, err := rd.readHeader()
		if err != nil {
			return nil, err
		}
		rd.header = StripHeaderBOM(hdr)
		rd.dialect.Fields = rd.header
	}
	rd.pending = append(rd.pending, dialectWarnings...)
	rd.pending = append(rd.pending, duplicateHeaders(rd.header)...)
	return rd, nil
}

// duplicateHeaders warns once per header name that appears more than once.
// Later columns of the same name overwrite earlier ones in a record.
func duplicateHeaders(header []string) []string {
	seen := make(map[string]int, len(header))
	var out []string
	for _, h := range header {
		seen[h]++
		if seen[h] == 2 {
			out = append(out, fmt.Sprintf("Duplicate header name %q", h))
		}
	}
	return out
}

// trimPartialLine drops the last, possibly cut, line of a sample that did not
// reach the end of the input.
func trimPartialLine(b []byte) []byte {
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] == '\n' || b[i] == '\r' {
			return b[:i+1]
		}
	}
	return b
}

func (r *Reader) readHeader() ([]string, error) {
	for {
		row, ok, err := r.tok.next()
		if err != nil {
			return nil, fmt.Errorf("csv: read header: %w", err)
		}
		if !ok {
			r.pending = append(r.pending, row.warnings...)
			r.done = true
			return []string{}, nil
		}
		if r.cfg.SkipEmptyLines && row.empty() {
			continue
		}
		r.pending = append(r.pending, row.warnings...)
		return row.fields, nil
	}
}

// Dialect returns the delimiter and linebreak in effect and the header names.
func (r *Reader) Dialect() parser.Dialect { return r.dialect }

// Offset returns the number of raw bytes consumed, BOM included.
func (r *Reader) Offset() int64 { return r.tok.s.offset() }

// Trailing returns warnings not yet attached to an emitted record.
func (r *Reader) Trailing() []string {
	out := r.pending
	r.pending = nil
	return out
}

// Next returns the next record, or io.EOF at end of input.
func (r *Reader) Next(ctx context.Context) (records.Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return records.Record{}, err
		}
		if r.done {
			return records.Record{}, io.EOF
		}
		row, ok, err := r.tok.next()
		if err != nil {
			return records.Record{}, fmt.Errorf("csv: read record %d: %w", r.index+1, err)
		}
		if !ok {
			r.done = true
			return records.Record{}, io.EOF
		}
		if r.cfg.SkipEmptyLines && row.empty() {
			r.pending = append(r.pending, row.warnings...)
			continue
		}
		return r.record(row), nil
	}
}

func (r *Reader) record(row row) records.Record {
	keys := r.header
	if keys == nil {
		keys = r.positional(len(row.fields))
	}

	warnings := append(r.pending, row.warnings...)
	r.pending = nil

	fields := make(map[string]any, len(keys))
	if row.blank {
		for _, k := range keys {
			fields[k] = nil
		}
	} else {
		if r.header != nil && len(row.fields) != len(r.header) {
			warnings = append(warnings, fieldCountWarning(len(r.header), len(row.fields)))
		}
		for i, k := range keys {
			if i >= len(row.fields) {
				break
			}
			fields[k] = row.fields[i]
		}
	}

	rec := records.Record{
		Index:    r.index,
		Keys:     keys,
		Fields:   fields,
		Warnings: warnings,
		Offset:   r.Offset(),
	}
	r.index++
	return rec
}

// positional returns the names "0".."n-1", reusing a cached slice.
func (r *Reader) positional(n int) []string {
	for len(r.names) < n {
		r.names = append(r.names, strconv.Itoa(len(r.names)))
	}
	return r.names[:n:n]
}

func fieldCountWarning(expected, parsed int) string {
	if parsed > expected {
		return fmt.Sprintf("Too many fields: expected %d fields but parsed %d", expected, parsed)
	}
	return fmt.Sprintf("Too few fields: expected %d fields but parsed %d", expected, parsed)
}
