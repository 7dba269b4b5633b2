package json

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"ingest/pkg/records"
)

// DecodeAll reads a whole JSON document from r and returns its objects as
// records. Accepted shapes: a top-level array of objects, a single object, or
// a sequence of concatenated objects (NDJSON). Any other shape is an error.
func DecodeAll(r io.Reader) ([]records.Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var out []records.Record
	add := func(raw json.RawMessage) error {
		fields, keys, err := decodeObject(raw)
		if err != nil {
			return fmt.Errorf("json parser: element %d: %w", len(out), err)
		}
		out = append(out, records.Record{Index: len(out), Keys: keys, Fields: fields})
		return nil
	}

	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("json parser: decode: %w", err)
		}

		body := bytes.TrimSpace(raw)
		if len(body) == 0 {
			continue
		}
		switch body[0] {
		case '{':
			if err := add(body); err != nil {
				return nil, err
			}
		case '[':
			var elems []json.RawMessage
			if err := json.Unmarshal(body, &elems); err != nil {
				return nil, fmt.Errorf("json parser: decode array: %w", err)
			}
			for _, e := range elems {
				if err := add(e); err != nil {
					return nil, err
				}
			}
		default:
			return nil, fmt.Errorf("json parser: unsupported top-level value %.20q", body)
		}
	}
}
