package webui

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"ingest/internal/importer"
	"ingest/internal/logging"
	"ingest/internal/metrics"
	"ingest/internal/storage"
)

const runIDHeader = "X-Run-ID"

// Summary closes an import: the whole response for a table import, the last
// NDJSON line for a streamed one.
type Summary struct {
	RunID    string   `json:"run_id"`
	Done     bool     `json:"done"`
	Table    string   `json:"table,omitempty"`
	Rows     int64    `json:"rows"`
	Warnings []string `json:"warnings"`
	Error    string   `json:"error,omitempty"`
}

// BatchLine is one streamed batch.
type BatchLine struct {
	RunID   string           `json:"run_id"`
	Batch   int              `json:"batch"`
	Meta    importer.Meta    `json:"meta"`
	Results importer.Results `json:"results"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	limit := s.cfg.PreviewLimit
	if req.limit > 0 && req.limit < limit {
		limit = req.limit
	}
	if req.opts.Limit == 0 || req.opts.Limit > limit {
		req.opts.Limit = limit
	}

	in, err := s.openBody(w, r, req)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	defer in.Close()

	start := time.Now()
	res, err := importer.ParseWhole(r.Context(), in, req.opts)
	metrics.RecordStep(s.cfg.Job, "preview", err, time.Since(start))
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
		logging.FromContext(r.Context()).Warn("preview failed", "name", req.name, "err", err)
	}
	writeJSON(w, status, res)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength < 0 {
		respondError(w, r, errLengthRequired, http.StatusLengthRequired)
		return
	}
	req, err := parseRequest(r)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	runID := uuid.NewString()
	w.Header().Set(runIDHeader, runID)
	log := logging.FromContext(r.Context()).With("run_id", runID)

	in, err := s.openBody(w, r, req)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	defer in.Close()
	if in.Decoded() {
		req.opts.BytesRead = in.BytesRead
	}

	if kind := s.cfg.Storage.Kind; kind == "" || kind == "stdout" {
		s.streamImport(w, r, req, in, runID)
		return
	}

	table := req.table
	if table == "" {
		table = s.cfg.Storage.DB.Table
	}
	if table == "" {
		table = storage.TableName(req.name)
	}
	repo, err := storage.New(r.Context(), storage.Config{Kind: s.cfg.Storage.Kind, DSN: s.cfg.Storage.DB.DSN, Table: table})
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	defer repo.Close()

	writer := storage.NewWriter(repo, storage.WriterOptions{
		Kind:       s.cfg.Storage.Kind,
		Table:      table,
		AutoCreate: s.cfg.Storage.DB.AutoCreateTable,
		Job:        s.cfg.Job,
	})
	log.Info("import started", "name", req.name, "table", table, "bytes", r.ContentLength)

	start := time.Now()
	warnings, err := importer.ParseBatched(r.Context(), in, r.ContentLength, s.cfg.Batch, writer.Write, req.opts)
	s.record("import", writer.Total(), warnings, err, time.Since(start))

	sum := Summary{RunID: runID, Done: err == nil, Table: table, Rows: writer.Total(), Warnings: nonNil(warnings)}
	status := http.StatusOK
	if err != nil {
		sum.Error = err.Error()
		status = statusFor(err)
		log.Error("import failed", "table", table, "rows", sum.Rows, "err", err)
	} else {
		log.Info("import finished", "table", table, "rows", sum.Rows, "warnings", len(warnings), "elapsed", time.Since(start).Truncate(time.Millisecond))
	}
	writeJSON(w, status, sum)
}

// streamImport writes each batch as an NDJSON line as soon as its handler
// runs, then a Summary line. Failures after the first line can only be
// reported in the summary.
func (s *Server) streamImport(w http.ResponseWriter, r *http.Request, req request, in io.Reader, runID string) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	sink := &ndjsonSink{enc: json.NewEncoder(w), rc: http.NewResponseController(w), runID: runID}
	start := time.Now()
	warnings, err := importer.ParseBatched(r.Context(), in, r.ContentLength, s.cfg.Batch, sink.write, req.opts)
	s.record("import", sink.rows, warnings, err, time.Since(start))

	sum := Summary{RunID: runID, Done: err == nil, Rows: sink.rows, Warnings: nonNil(warnings)}
	if err != nil {
		sum.Error = err.Error()
		logging.FromContext(r.Context()).Error("import failed", "run_id", runID, "err", err)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	_ = sink.enc.Encode(sum)
}

func (s *Server) record(step string, rows int64, warnings []string, err error, d time.Duration) {
	metrics.RecordStep(s.cfg.Job, step, err, d)
	metrics.RecordRows(s.cfg.Job, "parsed", rows)
	metrics.RecordWarnings(s.cfg.Job, len(warnings))
}

// ndjsonSink is an importer.OnBatch writing batches to the response.
type ndjsonSink struct {
	mu    sync.Mutex
	enc   *json.Encoder
	rc    *http.ResponseController
	runID string
	seq   int
	rows  int64
}

func (n *ndjsonSink) write(_ context.Context, res importer.Results, meta importer.Meta) ([]string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	if err := n.enc.Encode(BatchLine{RunID: n.runID, Batch: n.seq, Meta: meta, Results: res}); err != nil {
		return nil, fmt.Errorf("webui: write batch %d: %w", n.seq, err)
	}
	_ = n.rc.Flush()
	n.rows += int64(len(res.Data))
	return nil, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
