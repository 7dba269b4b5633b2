package config

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"ingest/internal/batch"
	"ingest/internal/importer"
	"ingest/internal/schema"
	"ingest/internal/transformer/builtin"
)

// ImporterOptions maps the parser section onto importer options.
func (p Parser) ImporterOptions() (importer.Options, error) {
	format, err := importer.ParseFormat(p.Kind)
	if err != nil {
		return importer.Options{}, fmt.Errorf("config: parser.kind: %w", err)
	}
	o := p.Options
	if o == nil {
		o = Options{}
	}

	opts := importer.Options{
		Format:            format,
		Delimiter:         o.String("delimiter", ""),
		DelimitersToGuess: o.StringSlice("delimiters_to_guess"),
		NoHeader:          !o.Bool("has_header", true),
		KeepEmptyLines:    o.Bool("keep_empty_lines", false),
		Newline:           o.String("newline", ""),
		Quote:             o.Byte("quote", 0),
		Escape:            o.Byte("escape", 0),
		CommentPrefix:     o.String("comment", ""),
		Limit:             o.Int("limit", 0),
		ListSeparator:     o.String("list_separator", ""),
		SampleSize:        o.Int("sample_size", 0),
		SkipDuplicates:    o.Bool("skip_duplicates", false),
	}
	if o.Has("null_values") {
		opts.NullValues = o.StringSlice("null_values")
		if opts.NullValues == nil {
			opts.NullValues = []string{}
		}
	}
	if o.Has("true_values") || o.Has("false_values") {
		opts.ToBoolean = boolVocabulary(o.StringSlice("true_values"), o.StringSlice("false_values"))
	}
	if raw := o.Any("columns"); raw != nil {
		cols, err := decodeColumns(raw)
		if err != nil {
			return importer.Options{}, fmt.Errorf("config: parser.options.columns: %w", err)
		}
		opts.Columns = cols
	}
	return opts, nil
}

// BatchOptions maps the batch section onto batch options.
func (b Batch) BatchOptions() batch.Options {
	return batch.Options{RowCount: b.RowCount, SizeMin: b.SizeMin, ConcurrentMax: b.ConcurrentMax}
}

func decodeColumns(raw any) ([]schema.Column, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var cols []schema.Column
	if err := json.Unmarshal(b, &cols); err != nil {
		return nil, err
	}
	if err := schema.Validate(cols); err != nil {
		return nil, err
	}
	return cols, nil
}

// boolVocabulary matches case-insensitively against the given tokens.
func boolVocabulary(truths, falses []string) builtin.BoolFunc {
	set := make(map[string]bool, len(truths)+len(falses))
	for _, s := range truths {
		set[strings.ToLower(strings.TrimSpace(s))] = true
	}
	for _, s := range falses {
		set[strings.ToLower(strings.TrimSpace(s))] = false
	}
	return func(s string) (bool, bool) {
		v, ok := set[strings.ToLower(strings.TrimSpace(s))]
		return v, ok
	}
}
