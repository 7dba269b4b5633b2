package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"ingest/internal/config"
	"ingest/internal/datasource"
	"ingest/internal/datasource/file"
	"ingest/internal/datasource/httpds"
	"ingest/internal/importer"
	"ingest/internal/metrics"
	"ingest/internal/schema"
	"ingest/internal/storage"
)

// thisMany warnings are logged individually; the rest are only counted.
const thisMany = 3

// Test seams.
var (
	newRepositoryFn = storage.New
	openSourceFn    = openSource
)

type runner struct {
	job    config.Job
	stdout io.Writer
}

func (r *runner) jobName() string {
	if r.job.Name != "" {
		return r.job.Name
	}
	return "ingest"
}

func openSource(s config.Source) (datasource.Source, error) {
	switch s.Kind {
	case "file":
		return file.NewLocal(s.File.Path), nil
	case "http":
		h := make(http.Header, len(s.HTTP.Headers))
		for k, v := range s.HTTP.Headers {
			h.Set(k, v)
		}
		return httpds.NewRemote(s.HTTP.URL, httpds.Config{
			MaxRetries:         s.HTTP.MaxRetries,
			InsecureSkipVerify: s.HTTP.InsecureSkipVerify,
			Headers:            h,
		}), nil
	}
	return nil, fmt.Errorf("unsupported source.kind=%s", s.Kind)
}

// open prepares the input and the importer options for it.
func (r *runner) open(ctx context.Context) (datasource.Source, *datasource.Input, importer.Options, error) {
	src, err := openSourceFn(r.job.Source)
	if err != nil {
		return nil, nil, importer.Options{}, err
	}
	opts, err := r.job.Parser.ImporterOptions()
	if err != nil {
		return nil, nil, importer.Options{}, err
	}
	comp, err := datasource.ParseCompression(r.job.Source.Compression)
	if err != nil {
		return nil, nil, importer.Options{}, fmt.Errorf("source.compression: %w", err)
	}
	in, err := datasource.Open(ctx, src, datasource.Options{Compression: comp, Charset: r.job.Source.Charset})
	if err != nil {
		return nil, nil, importer.Options{}, err
	}
	if in.Decoded() {
		opts.BytesRead = in.BytesRead
	}
	return src, in, opts, nil
}

// preview parses at most n rows and prints the result document.
func (r *runner) preview(ctx context.Context, n int) error {
	_, in, opts, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer in.Close()
	if opts.Limit == 0 || opts.Limit > n {
		opts.Limit = n
	}

	start := time.Now()
	res, parseErr := importer.ParseWhole(ctx, in, opts)
	metrics.RecordStep(r.jobName(), "preview", parseErr, time.Since(start))

	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(r.stdout, "%s\n", b); err != nil {
		return err
	}
	return parseErr
}

// ingest parses the whole input in batches into the configured sink.
func (r *runner) ingest(ctx context.Context) error {
	src, in, opts, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer in.Close()

	runID := uuid.NewString()
	log := slog.With("run_id", runID, "job", r.jobName())

	var (
		handler importer.OnBatch
		written func() int64
		finish  = func() error { return nil }
		sink    = r.job.Storage.Kind
	)
	switch sink {
	case "", "stdout":
		out := newRowWriter(r.stdout)
		defer out.Flush()
		handler, written = out.Write, out.Rows
		finish = func() error {
			if err := out.Flush(); err != nil {
				return fmt.Errorf("stdout: %w", err)
			}
			return nil
		}
		sink = "stdout"

	default:
		table := r.job.Storage.DB.Table
		if table == "" {
			table = storage.TableName(src.Name())
		}
		repo, err := newRepositoryFn(ctx, storage.Config{Kind: sink, DSN: r.job.Storage.DB.DSN, Table: table})
		if err != nil {
			return err
		}
		defer repo.Close()
		w := storage.NewWriter(repo, storage.WriterOptions{
			Kind:       sink,
			Table:      table,
			AutoCreate: r.job.Storage.DB.AutoCreateTable,
			Job:        r.jobName(),
		})
		handler, written = w.Write, w.Total
		log = log.With("table", table)
	}

	log.Info("ingest: start",
		"source", src.Name(),
		"bytes", in.Size,
		"compression", in.Compression.String(),
		"format", r.job.Parser.Kind,
		"sink", sink,
	)

	start := time.Now()
	warnings, err := importer.ParseBatched(ctx, in, in.Size, r.job.Batch.BatchOptions(), handler, opts)
	if err == nil {
		err = finish()
	}
	elapsed := time.Since(start)

	metrics.RecordStep(r.jobName(), "ingest", err, elapsed)
	metrics.RecordRows(r.jobName(), "parsed", written())
	metrics.RecordWarnings(r.jobName(), len(warnings))

	for i, w := range warnings {
		if i == thisMany {
			log.Warn(fmt.Sprintf("... %d more warnings", len(warnings)-thisMany))
			break
		}
		log.Warn(w)
	}
	if err != nil {
		log.Error("ingest: failed", "rows", written(), "elapsed", elapsed.Truncate(time.Millisecond), "err", err)
		return err
	}
	log.Info("ingest: done",
		"rows", written(),
		"warnings", len(warnings),
		"elapsed", elapsed.Truncate(time.Millisecond),
	)
	return nil
}

// rowWriter is an importer.OnBatch that prints each row as one JSON object
// per line with keys in column order. Batches may arrive out of order; rows
// within a batch keep their order.
type rowWriter struct {
	mu   sync.Mutex
	bw   *bufio.Writer
	buf  []byte
	rows int64
}

func newRowWriter(w io.Writer) *rowWriter {
	return &rowWriter{bw: bufio.NewWriterSize(w, 64<<10)}
}

func (rw *rowWriter) Write(_ context.Context, res importer.Results, _ importer.Meta) ([]string, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	for _, row := range res.Data {
		if err := rw.writeRow(res.Columns, row); err != nil {
			return nil, err
		}
	}
	rw.rows += int64(len(res.Data))
	return nil, nil
}

func (rw *rowWriter) writeRow(cols []schema.Column, row importer.Row) error {
	b := append(rw.buf[:0], '{')
	for i, c := range cols {
		if i > 0 {
			b = append(b, ',')
		}
		k, err := json.Marshal(c.Name)
		if err != nil {
			return err
		}
		v, err := json.Marshal(row[c.Name])
		if err != nil {
			return fmt.Errorf("column %q: %w", c.Name, err)
		}
		b = append(append(append(b, k...), ':'), v...)
	}
	b = append(b, '}', '\n')
	rw.buf = b
	_, err := rw.bw.Write(b)
	return err
}

func (rw *rowWriter) Rows() int64 {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.rows
}

func (rw *rowWriter) Flush() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.bw.Flush()
}
