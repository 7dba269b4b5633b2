// Package json turns JSON input into records.Record values.
//
// Two shapes are supported:
//
//   - newline-delimited JSON, streamed line by line by Reader:
//     {"id":1,"name":"a"}
//     {"id":2,"name":"b"}
//   - a whole document (array of objects, single object, or concatenated
//     objects), decoded at once by DecodeAll.
//
// Numbers are kept as json.Number so the coercion plan decides between int
// and float. Member order of each object is preserved in Record.Keys.
package json

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"ingest/internal/parser"
	"ingest/pkg/records"
)

// maxLineBytes bounds a single NDJSON line.
const maxLineBytes = 64 << 20

// Reader streams NDJSON records. Every physical line holds one object; a
// line that does not decode to an object is dropped with a warning and the
// stream continues. Blank lines are skipped. Reader implements
// parser.RecordReader.
type Reader struct {
	br      *bufio.Reader
	line    int
	offset  int64
	index   int
	pending []string
	started bool
	done    bool
}

var _ parser.RecordReader = (*Reader)(nil)

// NewReader wraps r. No input is read until the first Next.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 256*1024)}
}

// Dialect reports a newline-framed source without header fields.
func (r *Reader) Dialect() parser.Dialect { return parser.Dialect{Linebreak: "\n"} }

// Offset returns the raw bytes consumed so far.
func (r *Reader) Offset() int64 { return r.offset }

// Trailing returns warnings for dropped lines after the last record.
func (r *Reader) Trailing() []string {
	out := r.pending
	r.pending = nil
	return out
}

// Next returns the next object, or io.EOF at end of input.
func (r *Reader) Next(ctx context.Context) (records.Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return records.Record{}, err
		}
		if r.done {
			return records.Record{}, io.EOF
		}

		raw, err := r.readLine()
		if err != nil && !errors.Is(err, io.EOF) {
			return records.Record{}, fmt.Errorf("ndjson: read line %d: %w", r.line+1, err)
		}
		if errors.Is(err, io.EOF) {
			r.done = true
			if len(raw) == 0 {
				return records.Record{}, io.EOF
			}
		}
		r.line++
		r.offset += int64(len(raw))

		body := bytes.TrimSpace(raw)
		if r.line == 1 {
			body = bytes.TrimPrefix(body, []byte("\xEF\xBB\xBF"))
		}
		if len(body) == 0 {
			continue
		}

		fields, keys, perr := decodeObject(body)
		if perr != nil {
			r.pending = append(r.pending, fmt.Sprintf("Line %d: invalid JSON object: %v", r.line, perr))
			continue
		}

		rec := records.Record{
			Index:    r.index,
			Keys:     keys,
			Fields:   fields,
			Warnings: r.pending,
			Offset:   r.offset,
		}
		r.pending = nil
		r.index++
		return rec, nil
	}
}

// readLine returns the next physical line including its terminator. Lines
// longer than maxLineBytes fail the read.
func (r *Reader) readLine() ([]byte, error) {
	var buf []byte
	for {
		chunk, err := r.br.ReadSlice('\n')
		buf = append(buf, chunk...)
		if len(buf) > maxLineBytes {
			return nil, fmt.Errorf("line exceeds %d bytes", maxLineBytes)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return buf, err
	}
}

// decodeObject decodes one JSON object and its member order.
func decodeObject(b []byte) (map[string]any, []string, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, nil, err
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, nil, errors.New("unexpected data after object")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("expected object, got %s", jsonKind(v))
	}
	keys, err := objectKeys(b)
	if err != nil {
		return nil, nil, err
	}
	return obj, dedupe(keys), nil
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
