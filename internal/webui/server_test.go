package webui

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"ingest/internal/batch"
	"ingest/internal/config"
	"ingest/internal/schema"
	"ingest/internal/storage"
)

type previewBody struct {
	Success  bool             `json:"success"`
	Columns  []schema.Column  `json:"columns"`
	Data     []map[string]any `json:"data"`
	Warnings []string         `json:"warnings"`
}

func post(t *testing.T, srv *Server, path string, q url.Values, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	target := path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	req := httptest.NewRequest(http.MethodPost, target, body)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func csvRows(n int) string {
	var sb strings.Builder
	sb.WriteString("id;name\n")
	for i := 0; i < n; i++ {
		sb.WriteString("7;x\n")
	}
	return sb.String()
}

func TestIndexAndHealth(t *testing.T) {
	t.Parallel()

	srv := NewServer(Config{})
	for _, path := range []string{"/", "/healthz"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s = %d", path, rec.Code)
		}
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()

	srv := NewServer(Config{PreviewLimit: 3})
	cases := []struct {
		name     string
		q        url.Values
		body     string
		wantRows int
	}{
		{"server cap", nil, csvRows(10), 3},
		{"request limit", url.Values{"limit": {"2"}}, csvRows(10), 2},
		{"limit above cap", url.Values{"limit": {"50"}}, csvRows(10), 3},
		{"options limit", url.Values{"options": {`{"limit": 1}`}}, csvRows(10), 1},
		{"ndjson", url.Values{"format": {"ndjson"}}, "{\"id\":1}\n{\"id\":2}\n", 2},
	}
	for _, c := range cases {
		rec := post(t, srv, "/api/preview", c.q, strings.NewReader(c.body))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d body=%s", c.name, rec.Code, rec.Body)
		}
		var got previewBody
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("%s: decode: %v", c.name, err)
		}
		if !got.Success || len(got.Data) != c.wantRows {
			t.Fatalf("%s: success=%v rows=%d, want %d", c.name, got.Success, len(got.Data), c.wantRows)
		}
		if got.Columns[0].Name != "id" || got.Columns[0].Type != schema.TypeInt {
			t.Fatalf("%s: columns = %+v", c.name, got.Columns)
		}
	}
}

func TestPreview_Gzip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte("a,b\n1,true\n"))
	_ = zw.Close()

	srv := NewServer(Config{})
	rec := post(t, srv, "/api/preview", url.Values{"name": {"upload.csv.gz"}}, &buf)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var got previewBody
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Data) != 1 || got.Data[0]["b"] != true {
		t.Fatalf("data = %v", got.Data)
	}
}

func TestPreview_BadRequests(t *testing.T) {
	t.Parallel()

	srv := NewServer(Config{})
	cases := []struct {
		name string
		q    url.Values
	}{
		{"options not json", url.Values{"options": {"{nope"}}},
		{"unknown format", url.Values{"format": {"xlsx"}}},
		{"unknown compression", url.Values{"compression": {"rar"}}},
		{"negative limit", url.Values{"limit": {"-1"}}},
		{"bad columns", url.Values{"options": {`{"columns": [{"name": "", "type": "int"}]}`}}},
		{"unknown charset", url.Values{"charset": {"klingon"}}},
	}
	for _, c := range cases {
		rec := post(t, srv, "/api/preview", c.q, strings.NewReader("a\n1\n"))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400 (body=%s)", c.name, rec.Code, rec.Body)
		}
		var er ErrorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil || er.Error == "" {
			t.Fatalf("%s: error body = %s", c.name, rec.Body)
		}
	}
}

func TestPreview_TooLarge(t *testing.T) {
	t.Parallel()

	srv := NewServer(Config{MaxBodyBytes: 16})
	rec := post(t, srv, "/api/preview", nil, strings.NewReader(csvRows(50)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413 (body=%s)", rec.Code, rec.Body)
	}
}

func TestImport_RequiresContentLength(t *testing.T) {
	t.Parallel()

	srv := NewServer(Config{})
	req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(csvRows(1)))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusLengthRequired {
		t.Fatalf("status = %d, want 411", rec.Code)
	}
}

func TestImport_StreamsNDJSON(t *testing.T) {
	t.Parallel()

	srv := NewServer(Config{Batch: batch.Options{RowCount: 100, ConcurrentMax: 1}})
	rec := post(t, srv, "/api/import", nil, strings.NewReader(csvRows(250)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("content type = %q", ct)
	}
	runID := rec.Header().Get(runIDHeader)
	if _, err := uuid.Parse(runID); err != nil {
		t.Fatalf("run id %q: %v", runID, err)
	}

	var lines []string
	sc := bufio.NewScanner(rec.Body)
	sc.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want 3 batches + summary", len(lines))
	}

	var progress []float64
	for i, l := range lines[:3] {
		var b BatchLine
		if err := json.Unmarshal([]byte(l), &b); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if b.RunID != runID || b.Batch != i+1 {
			t.Fatalf("line %d: run=%s batch=%d", i, b.RunID, b.Batch)
		}
		progress = append(progress, b.Meta.EstimatedProgress)
	}
	if progress[2] != 1 || progress[0] >= progress[1] {
		t.Fatalf("progress = %v", progress)
	}

	var sum Summary
	if err := json.Unmarshal([]byte(lines[3]), &sum); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !sum.Done || sum.Rows != 250 || sum.RunID != runID || sum.Error != "" {
		t.Fatalf("summary = %+v", sum)
	}
}

type captureRepo struct {
	mu    sync.Mutex
	table string
	rows  int
}

func (c *captureRepo) CopyFrom(_ context.Context, _ []string, rows [][]any) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows += len(rows)
	return int64(len(rows)), nil
}
func (c *captureRepo) Exec(context.Context, string) error { return nil }
func (c *captureRepo) Close() {}

func TestImport_IntoTable(t *testing.T) {
	t.Parallel()

	repo := &captureRepo{}
	storage.Register("webui-capture", func(_ context.Context, cfg storage.Config) (storage.Repository, error) {
		repo.table = cfg.Table
		return repo, nil
	})

	srv := NewServer(Config{
		Batch:   batch.Options{RowCount: 40},
		Storage: config.Storage{Kind: "webui-capture"},
	})
	rec := post(t, srv, "/api/import", url.Values{"name": {"RSV Vozidla.csv"}}, strings.NewReader(csvRows(100)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	var sum Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !sum.Done || sum.Rows != 100 || sum.Table != "rsv_vozidla" {
		t.Fatalf("summary = %+v", sum)
	}
	if repo.table != "rsv_vozidla" || repo.rows != 100 {
		t.Fatalf("repo table=%s rows=%d", repo.table, repo.rows)
	}
}

func TestImport_UnknownStorageKind(t *testing.T) {
	t.Parallel()

	srv := NewServer(Config{Storage: config.Storage{Kind: "nope"}})
	rec := post(t, srv, "/api/import", nil, strings.NewReader(csvRows(1)))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var er ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(er.Error, "unsupported storage.kind=nope") || er.RunID == "" {
		t.Fatalf("error = %+v", er)
	}
}
