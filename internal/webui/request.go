package webui

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"ingest/internal/config"
	"ingest/internal/datasource"
	"ingest/internal/importer"
)

// request is the parse configuration carried in the query string.
type request struct {
	name   string
	opts   importer.Options
	source datasource.Options
	limit  int
	table  string
}

func parseRequest(r *http.Request) (request, error) {
	q := r.URL.Query()

	p := config.Parser{Kind: q.Get("format"), Options: config.Options{}}
	if raw := strings.TrimSpace(q.Get("options")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.Options); err != nil {
			return request{}, fmt.Errorf("options: %w", err)
		}
	}
	opts, err := p.ImporterOptions()
	if err != nil {
		return request{}, err
	}

	comp, err := datasource.ParseCompression(q.Get("compression"))
	if err != nil {
		return request{}, fmt.Errorf("compression: %w", err)
	}

	req := request{
		name:   strings.TrimSpace(q.Get("name")),
		opts:   opts,
		source: datasource.Options{Compression: comp, Charset: q.Get("charset")},
		table:  strings.TrimSpace(q.Get("table")),
	}
	if req.name == "" {
		req.name = "upload"
	}
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return request{}, fmt.Errorf("limit: want a non-negative integer, got %q", v)
		}
		req.limit = n
	}
	return req, nil
}

// bodySource adapts a request body to datasource.Source.
type bodySource struct {
	name string
	body io.ReadCloser
	size int64
}

func (b *bodySource) Name() string { return b.name }
func (b *bodySource) Open(context.Context) (io.ReadCloser, error) { return b.body, nil }
func (b *bodySource) Size(context.Context) (int64, error) { return b.size, nil }

// openBody layers decompression and transcoding over the request body.
func (s *Server) openBody(w http.ResponseWriter, r *http.Request, req request) (*datasource.Input, error) {
	body := r.Body
	if s.cfg.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, body, s.cfg.MaxBodyBytes)
	}
	return datasource.Open(r.Context(), &bodySource{name: req.name, body: body, size: r.ContentLength}, req.source)
}
