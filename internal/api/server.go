// Package api serves the PrivaNote HTTP API.
//
// Routes:
//
//	POST   /api/meetings                  upload a recording and process it
//	GET    /api/meetings                  list meetings, newest first
//	DELETE /api/meetings                  delete every meeting
//	GET    /api/meetings/{id}             get one meeting
//	PATCH  /api/meetings/{id}             edit title, date, notes, transcript or analysis
//	DELETE /api/meetings/{id}             delete one meeting
//	GET    /api/meetings/{id}/export      render as markdown or json
//	GET    /api/meetings/{id}/summary     summary of ?words= words plus action items
//	GET    /api/search?q=&fields=         case-insensitive search
//	GET    /api/stats                     store statistics
//	GET    /api/export                    full-store archive
//	POST   /api/import                    import an archive
//	GET    /api/providers                 backend descriptors and the selected backend
//	PUT    /api/providers/selected        change the selected backend
//	POST   /api/providers/{id}/probe      probe one backend now
//	GET    /api/transcriber               loaded model
//	PUT    /api/transcriber/model         load another model size
//	GET    /api/record                    websocket live recording
//
// plus /healthz, /readyz, /metrics and, when configured, /mcp.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/privanote/internal/app"
	"github.com/MrWong99/privanote/internal/export"
	"github.com/MrWong99/privanote/internal/health"
	"github.com/MrWong99/privanote/internal/meeting"
	"github.com/MrWong99/privanote/internal/observe"
	"github.com/MrWong99/privanote/internal/pipeline"
	"github.com/MrWong99/privanote/internal/transcribe"
	"github.com/MrWong99/privanote/pkg/audio"
)

// Option configures a [Server].
type Option func(*Server)

// WithMCP mounts h at /mcp.
func WithMCP(h http.Handler) Option {
	return func(s *Server) { s.mcp = h }
}

// WithMetricsHandler replaces the Prometheus handler served at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithOriginPatterns allows websocket connections from the given host
// patterns in addition to same-origin requests.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = append(s.origins, patterns...) }
}

// Server routes HTTP requests to the application.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	mcp            http.Handler
	metricsHandler http.Handler
	origins        []string
	maxUpload      int64
}

// New creates a Server for a.
func New(a *app.App, opts ...Option) *Server {
	s := &Server{
		app:            a,
		mux:            http.NewServeMux(),
		metricsHandler: promhttp.Handler(),
		maxUpload:      int64(a.Config().Server.MaxUploadMB) << 20,
	}
	for _, o := range opts {
		o(s)
	}
	s.routes()
	return s
}

// Handler returns the root handler wrapped in the metrics and tracing
// middleware.
func (s *Server) Handler() http.Handler {
	return observe.Middleware(s.app.Metrics())(s.mux)
}

func (s *Server) routes() {
	m := s.mux

	m.HandleFunc("POST /api/meetings", s.handleUpload)
	m.HandleFunc("GET /api/meetings", s.handleList)
	m.HandleFunc("DELETE /api/meetings", s.handleClear)
	m.HandleFunc("GET /api/meetings/{id}", s.handleGet)
	m.HandleFunc("PATCH /api/meetings/{id}", s.handleUpdate)
	m.HandleFunc("DELETE /api/meetings/{id}", s.handleDelete)
	m.HandleFunc("GET /api/meetings/{id}/export", s.handleExport)
	m.HandleFunc("GET /api/meetings/{id}/summary", s.handleSummary)
	m.HandleFunc("GET /api/search", s.handleSearch)
	m.HandleFunc("GET /api/stats", s.handleStats)
	m.HandleFunc("GET /api/export", s.handleExportAll)
	m.HandleFunc("POST /api/import", s.handleImport)

	m.HandleFunc("GET /api/providers", s.handleProviders)
	m.HandleFunc("PUT /api/providers/selected", s.handleSelectProvider)
	m.HandleFunc("POST /api/providers/{id}/probe", s.handleProbe)
	m.HandleFunc("GET /api/transcriber", s.handleTranscriber)
	m.HandleFunc("PUT /api/transcriber/model", s.handleSetModel)

	m.HandleFunc("GET /api/record", s.handleRecord)

	health.New(s.app.HealthCheckers()...).Register(m)
	m.Handle("GET /metrics", s.metricsHandler)
	if s.mcp != nil {
		m.Handle("/mcp", s.mcp)
	}
}

// ─── Responses ────────────────────────────────────────────────────────────────

type errorBody struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeError maps err to a status code and writes it as JSON. Server-side
// failures are logged with the request's trace context.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	body := errorBody{Error: err.Error()}
	var se *pipeline.StageError
	if errors.As(err, &se) {
		body.Stage = string(se.Stage)
	}
	if status >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("request failed", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, meeting.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, meeting.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, meeting.ErrValidation),
		errors.Is(err, transcribe.ErrInvalidModelSize),
		errors.Is(err, export.ErrSerialization):
		return http.StatusBadRequest
	case errors.Is(err, audio.ErrAudioDecode),
		errors.Is(err, transcribe.ErrEmptySpeech),
		errors.Is(err, transcribe.ErrUnsupportedLanguage):
		return http.StatusUnprocessableEntity
	case errors.Is(err, transcribe.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
