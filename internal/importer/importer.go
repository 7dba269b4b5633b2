// Package importer wires the tokenizers, column inference, coercion and
// batching into the two parse operations: ParseWhole materializes one result
// set, ParseBatched streams bounded batches to a handler.
//
// Tokenizer and coercion problems never fail a run; they surface as warnings
// and null values. Only stream read failures and batch handler failures are
// returned as errors.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"ingest/internal/batch"
	"ingest/internal/parser"
	"ingest/internal/parser/csv"
	ndjson "ingest/internal/parser/json"
	"ingest/internal/probe"
	"ingest/internal/transformer"
	"ingest/internal/transformer/builtin"
	"ingest/pkg/records"
)

// ParseWhole reads r to the end (or to opts.Limit records) and returns every
// coerced row. A read failure yields an unsuccessful Results carrying the
// warnings gathered so far, and an error wrapping ErrStreamIO.
func ParseWhole(ctx context.Context, r io.Reader, opts Options) (Results, error) {
	rd, err := openReader(r, opts)
	if err != nil {
		return failed(nil), streamErr(err)
	}
	in := newIntake(rd, opts)

	var recs []records.Record
	for {
		rec, err := in.next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return failed(rawWarnings(recs)), streamErr(err)
		}
		recs = append(recs, rec)
	}

	sample := recs
	if opts.SampleSize > 0 && len(sample) > opts.SampleSize {
		sample = sample[:opts.SampleSize]
	}
	plan, err := opts.plan(sample)
	if err != nil {
		return failed([]string{err.Error()}), err
	}
	return coerceAll(plan, recs, in.trailing()), nil
}

// ParseString parses an in-memory document.
func ParseString(ctx context.Context, s string, opts Options) (Results, error) {
	return ParseWhole(ctx, strings.NewReader(s), opts)
}

// ParseRows coerces already-decoded JSON objects. Objects carry no key order,
// so the keys of each row are taken in sorted order. Limit and Columns apply
// as for ParseWhole; dialect options are ignored.
func ParseRows(rows []map[string]any, opts Options) Results {
	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}
	recs := make([]records.Record, len(rows))
	for i, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		recs[i] = records.Record{Index: i, Keys: keys, Fields: row}
	}
	res, err := parseRecords(recs, opts)
	if err != nil {
		return failed([]string{err.Error()})
	}
	return res
}

// ParseJSON parses a whole JSON document: an array of objects, one object,
// or concatenated objects. Key order follows the document.
func ParseJSON(r io.Reader, opts Options) (Results, error) {
	recs, err := ndjson.DecodeAll(r)
	if err != nil {
		return failed([]string{err.Error()}), err
	}
	if opts.Limit > 0 && len(recs) > opts.Limit {
		recs = recs[:opts.Limit]
	}
	return parseRecords(recs, opts)
}

func parseRecords(recs []records.Record, opts Options) (Results, error) {
	sample := recs
	if opts.SampleSize > 0 && len(sample) > opts.SampleSize {
		sample = sample[:opts.SampleSize]
	}
	plan, err := opts.plan(sample)
	if err != nil {
		return failed([]string{err.Error()}), err
	}
	return coerceAll(plan, recs, nil), nil
}

func coerceAll(plan *transformer.Plan, recs []records.Record, trailing []string) Results {
	res := Results{
		Success:  true,
		Columns:  plan.Columns(),
		Data:     make([]Row, 0, len(recs)),
		Warnings: []string{},
	}
	for _, rec := range recs {
		row, w := plan.Coerce(rec)
		res.Warnings = append(res.Warnings, rec.Warnings...)
		res.Warnings = append(res.Warnings, w...)
		res.Data = append(res.Data, row)
	}
	res.Warnings = append(res.Warnings, trailing...)
	return res
}

func rawWarnings(recs []records.Record) []string {
	var out []string
	for _, rec := range recs {
		out = append(out, rec.Warnings...)
	}
	return out
}

// ParseBatched streams r into batches and calls onBatch for each. fileSize
// is the size of r in bytes and is required for a non-empty stream. The
// first opts.SampleSize records are read ahead for inference and then
// replayed, so the input is read once.
//
// It returns the warnings of every batch plus those returned by onBatch.
// A failing handler yields a *BatchError; batches already delivered are not
// retracted.
func ParseBatched(ctx context.Context, r io.Reader, fileSize int64, bopts batch.Options, onBatch OnBatch, opts Options) ([]string, error) {
	if onBatch == nil {
		return nil, errors.New("importer: nil batch handler")
	}
	rd, err := openReader(r, opts)
	if err != nil {
		return nil, streamErr(err)
	}
	in := newIntake(rd, opts)

	size := opts.SampleSize
	if size <= 0 {
		size = probe.DefaultSampleSize
	}
	var sample []records.Record
	for len(sample) < size {
		rec, err := in.next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rawWarnings(sample), streamErr(err)
		}
		sample = append(sample, rec)
	}
	if len(sample) > 0 && fileSize <= 0 {
		return nil, ErrUnknownSize
	}

	plan, err := opts.plan(sample)
	if err != nil {
		return nil, err
	}
	columns := plan.Columns()
	dialect := rd.Dialect()

	src := &rowSource{in: in, plan: plan, buffered: sample}
	return batch.Run(ctx, src, fileSize, opts.BytesRead, bopts, func(ctx context.Context, b batch.Batch) ([]string, error) {
		res := Results{Success: true, Columns: columns, Data: b.Rows, Warnings: b.Warnings}
		if res.Warnings == nil {
			res.Warnings = []string{}
		}
		return onBatch(ctx, res, Meta{
			Delimiter:         dialect.Delimiter,
			Linebreak:         dialect.Linebreak,
			Fields:            dialect.Fields,
			EstimatedProgress: b.Progress,
		})
	})
}

// rowSource replays the inference sample and then coerces the remaining
// records as the batcher pulls them.
type rowSource struct {
	in       *intake
	plan     *transformer.Plan
	buffered []records.Record
}

func (s *rowSource) Next(ctx context.Context) (batch.Entry, error) {
	var rec records.Record
	if len(s.buffered) > 0 {
		rec, s.buffered = s.buffered[0], s.buffered[1:]
	} else {
		var err error
		if rec, err = s.in.next(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				return batch.Entry{}, err
			}
			return batch.Entry{}, streamErr(err)
		}
	}
	row, w := s.plan.Coerce(rec)
	return batch.Entry{
		Row:      row,
		Warnings: append(append([]string(nil), rec.Warnings...), w...),
		Offset:   rec.Offset,
	}, nil
}

func (s *rowSource) Trailing() []string { return s.in.trailing() }

func openReader(r io.Reader, opts Options) (parser.RecordReader, error) {
	switch opts.Format {
	case "", FormatCSV:
		rd, err := csv.NewReader(r, opts.csvConfig())
		if err != nil {
			return nil, err
		}
		return rd, nil
	case FormatNDJSON:
		return ndjson.NewReader(r), nil
	}
	return nil, fmt.Errorf("importer: unknown format %q", opts.Format)
}

// intake applies the record limit and duplicate suppression in front of a
// reader. Warnings of dropped records move to the next kept record.
type intake struct {
	rd    parser.RecordReader
	dedup *builtin.DeDup
	limit int
	taken int
	carry []string
	eof   bool
}

func newIntake(rd parser.RecordReader, opts Options) *intake {
	in := &intake{rd: rd, limit: opts.Limit}
	if opts.SkipDuplicates {
		in.dedup = builtin.NewDeDup()
	}
	return in
}

func (in *intake) next(ctx context.Context) (records.Record, error) {
	for {
		if in.limit > 0 && in.taken >= in.limit {
			return records.Record{}, io.EOF
		}
		rec, err := in.rd.Next(ctx)
		if errors.Is(err, io.EOF) {
			in.eof = true
			return records.Record{}, io.EOF
		}
		if err != nil {
			return records.Record{}, err
		}
		if in.dedup != nil && in.dedup.Seen(rec) {
			in.carry = append(in.carry, rec.Warnings...)
			in.carry = append(in.carry, fmt.Sprintf("Row %d: duplicate row skipped", rec.Index+1))
			continue
		}
		if len(in.carry) > 0 {
			rec.Warnings = append(in.carry, rec.Warnings...)
			in.carry = nil
		}
		in.taken++
		return rec, nil
	}
}

// trailing returns warnings not attached to any kept record. Reader warnings
// are only included once the reader is exhausted.
func (in *intake) trailing() []string {
	out := in.carry
	in.carry = nil
	if in.eof {
		out = append(out, in.rd.Trailing()...)
	}
	return out
}
