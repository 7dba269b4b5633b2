package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"ingest/internal/importer"
	"ingest/internal/metrics"
	"ingest/internal/schema"
	"ingest/internal/transformer/builtin"
)

// WriterOptions configures a Writer.
type WriterOptions struct {
	// Kind selects the DDL bootstrapper when AutoCreate is set.
	Kind string

	Table      string
	AutoCreate bool

	// Job labels metrics.
	Job string
}

// Writer loads parse batches into one table. Its Write method is an
// importer.OnBatch and is safe for concurrent use. The table layout is
// resolved once, from the columns of the first batch.
type Writer struct {
	repo Repository
	opts WriterOptions

	once    sync.Once
	names   []string
	initErr error

	total   atomic.Int64
	batches atomic.Int64
	start   time.Time
}

// NewWriter returns a Writer for repo.
func NewWriter(repo Repository, opts WriterOptions) *Writer {
	return &Writer{repo: repo, opts: opts, start: time.Now()}
}

// Write converts the batch rows to the table's column order and bulk-loads
// them. Values a SQL column cannot hold directly (lists, objects) are stored
// as JSON text.
func (w *Writer) Write(ctx context.Context, res importer.Results, meta importer.Meta) ([]string, error) {
	w.once.Do(func() { w.names, w.initErr = w.prepare(ctx, res.Columns) })
	if w.initErr != nil {
		return nil, w.initErr
	}
	if len(res.Data) == 0 {
		return nil, nil
	}

	rows := make([][]any, len(res.Data))
	for i, r := range res.Data {
		row := make([]any, len(res.Columns))
		for j, c := range res.Columns {
			v, err := sqlValue(r[c.Name], c.Type)
			if err != nil {
				return nil, fmt.Errorf("storage: column %q: %w", c.Name, err)
			}
			row[j] = v
		}
		rows[i] = row
	}

	n, err := w.repo.CopyFrom(ctx, w.names, rows)
	if err != nil {
		slog.Error("storage: copy failed", "table", w.opts.Table, "rows", len(rows), "err", err)
		return nil, fmt.Errorf("storage: copy into %s: %w", w.opts.Table, err)
	}

	total := w.total.Add(n)
	seq := w.batches.Add(1)
	elapsed := time.Since(w.start)
	rps := float64(0)
	if elapsed > 0 {
		rps = float64(total) / elapsed.Seconds()
	}
	slog.Info(fmt.Sprintf("batch #%d", seq),
		"inserted", n,
		"total_inserted", total,
		"rps", int64(rps),
		"progress", meta.EstimatedProgress,
		"elapsed", elapsed.Truncate(time.Millisecond),
	)
	metrics.RecordRows(w.opts.Job, "written", n)
	metrics.RecordBatches(w.opts.Job, len(rows))
	return nil, nil
}

// Total returns the rows written so far.
func (w *Writer) Total() int64 { return w.total.Load() }

// Columns returns the SQL column names, available after the first Write.
func (w *Writer) Columns() []string { return w.names }

func (w *Writer) prepare(ctx context.Context, cols []schema.Column) ([]string, error) {
	if len(cols) == 0 {
		return nil, fmt.Errorf("storage: batch has no columns")
	}
	if !w.opts.AutoCreate {
		return builtin.NormalizeNames(schema.Names(cols)), nil
	}
	names, err := EnsureTable(ctx, w.opts.Kind, w.repo, w.opts.Table, cols)
	if err != nil {
		return nil, fmt.Errorf("storage: ensure table %s: %w", w.opts.Table, err)
	}
	slog.Info("storage: table ready", "table", w.opts.Table, "columns", len(names))
	return names, nil
}

func sqlValue(v any, t schema.Type) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case schema.TypeMultiple, schema.TypeObject:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return v, nil
}

var dataExts = map[string]bool{
	".csv": true, ".tsv": true, ".txt": true, ".ndjson": true, ".jsonl": true, ".json": true,
	".gz": true, ".zst": true, ".xz": true, ".lz4": true, ".bz2": true,
}

// TableName derives a table name from a source name: the base name without
// data and compression extensions, normalized into a SQL identifier.
// "/data/RSV Vozidla.csv.gz" becomes "rsv_vozidla".
func TableName(source string) string {
	base := path.Base(strings.ReplaceAll(source, "\\", "/"))
	for {
		ext := strings.ToLower(path.Ext(base))
		if ext == "" || !dataExts[ext] || len(ext) == len(base) {
			break
		}
		base = base[:len(base)-len(ext)]
	}
	return builtin.NormalizeName(base)
}
