// Package parser holds the contract shared by the record tokenizers.
package parser

import (
	"context"

	"ingest/pkg/records"
)

// Dialect describes how a source was split into records. It is fixed once the
// reader has been constructed.
type Dialect struct {
	Delimiter string
	Linebreak string

	// Fields lists the header names, or nil when the source has no header row.
	Fields []string
}

// RecordReader streams raw records from a source.
//
// Next returns io.EOF once the source is exhausted. Any other error is fatal
// for the run. Malformed input never produces an error; it surfaces as
// warnings on the affected record.
type RecordReader interface {
	Next(ctx context.Context) (records.Record, error)
	Dialect() Dialect

	// Trailing returns warnings that were raised after the last emitted record
	// (or on an input that produced no records). Valid once Next returned io.EOF.
	Trailing() []string

	// Offset is the number of raw bytes consumed so far.
	Offset() int64
}
