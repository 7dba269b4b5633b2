package logging

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	} {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_TextAndJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn := New(Config{Level: "warn", Out: &buf})
	defer closeFn()

	logger.Info("hidden")
	logger.Warn("shown", "rows", 3)
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "rows=3")

	buf.Reset()
	logger, closeFn = New(Config{Level: "debug", Format: "JSON", Out: &buf})
	defer closeFn()
	logger.Debug("batch #1", "progress", 0.5)
	assert.True(t, strings.HasPrefix(buf.String(), "{"), buf.String())
	assert.Contains(t, buf.String(), `"msg":"batch #1"`)
}

func TestMultiHandler_FansOutByLevel(t *testing.T) {
	var all, errs bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&all, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&errs, &slog.HandlerOptions{Level: slog.LevelError}),
	}}
	logger := slog.New(h).With("run", "r1").WithGroup("g")

	require.True(t, h.Enabled(context.Background(), slog.LevelDebug))
	logger.Debug("d", "k", 1)
	logger.Error("e", "k", 2)

	assert.Contains(t, all.String(), "msg=d")
	assert.Contains(t, all.String(), "msg=e")
	assert.Contains(t, all.String(), "run=r1")
	assert.Contains(t, all.String(), "g.k=2")
	assert.NotContains(t, errs.String(), "msg=d")
	assert.Contains(t, errs.String(), "msg=e")
}

func TestFromContext_RequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("handled")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Contains(t, buf.String(), "request_id=")

	buf.Reset()
	FromContext(context.Background()).Info("plain")
	assert.NotContains(t, buf.String(), "request_id")
}
