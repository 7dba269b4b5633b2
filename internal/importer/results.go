package importer

import (
	"context"

	"github.com/goccy/go-json"

	"ingest/internal/schema"
	"ingest/internal/transformer"
)

// Row is one coerced row keyed by column name.
type Row = transformer.Row

// Results is the outcome of a parse. A successful result carries columns,
// data and warnings; a failed one carries warnings only.
type Results struct {
	Success  bool
	Columns  []schema.Column
	Data     []Row
	Warnings []string
}

// MarshalJSON renders the two result shapes without mixing them.
func (r Results) MarshalJSON() ([]byte, error) {
	warnings := r.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	if !r.Success {
		return json.Marshal(struct {
			Success  bool     `json:"success"`
			Warnings []string `json:"warnings"`
		}{false, warnings})
	}
	cols, data := r.Columns, r.Data
	if cols == nil {
		cols = []schema.Column{}
	}
	if data == nil {
		data = []Row{}
	}
	return json.Marshal(struct {
		Success  bool            `json:"success"`
		Columns  []schema.Column `json:"columns"`
		Data     []Row           `json:"data"`
		Warnings []string        `json:"warnings"`
	}{true, cols, data, warnings})
}

// Meta describes the dialect of a batched run and the progress reached when a
// batch closed.
type Meta struct {
	Delimiter string `json:"delimiter"`
	Linebreak string `json:"linebreak"`

	// Fields is nil when the source has no header row.
	Fields []string `json:"fields,omitempty"`

	EstimatedProgress float64 `json:"estimatedProgress"`
}

// OnBatch receives one batch of a batched run. Handlers may run concurrently;
// the columns slice is shared between them and must not be modified.
// Returned warnings are added to the run's warnings.
type OnBatch func(ctx context.Context, batch Results, meta Meta) ([]string, error)

func failed(warnings []string) Results {
	if warnings == nil {
		warnings = []string{}
	}
	return Results{Success: false, Warnings: warnings}
}
