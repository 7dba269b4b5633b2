package webui

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"ingest/internal/importer"
	"ingest/internal/logging"
)

var errLengthRequired = errors.New("import needs a Content-Length to report progress")

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
	RunID     string `json:"run_id,omitempty"`
}

// respondError logs err and writes it as JSON.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"err", err,
	)
	writeJSON(w, status, ErrorResponse{
		Error:     err.Error(),
		RequestID: middleware.GetReqID(r.Context()),
		RunID:     w.Header().Get(runIDHeader),
	})
}

// statusFor maps a parse failure onto an HTTP status.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, importer.ErrInvalidColumns),
		errors.Is(err, importer.ErrStreamIO),
		errors.Is(err, importer.ErrUnknownSize):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
