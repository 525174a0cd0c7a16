// Package server exposes the engine over HTTP: answering, template reload,
// health and metrics.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"intent-gateway/internal/common/logger"
	"intent-gateway/internal/engine"
	"intent-gateway/internal/formatter"
	"intent-gateway/internal/matcher"
	"intent-gateway/internal/template"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reloader rebuilds the template library and its index from disk.
type Reloader interface {
	Reload(ctx context.Context) (*template.LoadReport, error)
}

// Server routes HTTP requests to the engine.
type Server struct {
	engine   *engine.Engine
	reloader Reloader
	logger   logger.Logger
	mux      *http.ServeMux
}

// New builds the server and its routes. reloader may be nil, in which case
// the reload endpoint reports the feature unavailable.
func New(eng *engine.Engine, reloader Reloader, log logger.Logger) *Server {
	s := &Server{
		engine:   eng,
		reloader: reloader,
		logger:   log.WithFields(map[string]interface{}{"component": "server"}),
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("/v1/answer", s.handleAnswer)
	s.mux.HandleFunc("/v1/reload", s.handleReload)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())

	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

type answerRequest struct {
	Query               string   `json:"query"`
	TopK                int      `json:"top_k,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	MinMargin           *float64 `json:"min_margin,omitempty"`
}

type answerResponse struct {
	QueryID       string                  `json:"query_id"`
	Outcome       string                  `json:"outcome"`
	Items         []formatter.ContextItem `json:"items,omitempty"`
	TemplateID    string                  `json:"template_id,omitempty"`
	MissingParams []string                `json:"missing_params,omitempty"`
	BestScore     float64                 `json:"best_score,omitempty"`
	DurationMs    int64                   `json:"duration_ms"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := s.engine.Answer(r.Context(), req.Query, engine.Options{
		TopK:                req.TopK,
		ConfidenceThreshold: req.ConfidenceThreshold,
		MinMargin:           req.MinMargin,
	})
	if err != nil {
		if err == engine.ErrEmptyQuery {
			writeError(w, http.StatusBadRequest, "query must not be empty")
			return
		}
		s.logger.Error("Answer failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, answerResponse{
		QueryID:       result.QueryID,
		Outcome:       string(result.Outcome),
		Items:         result.Items,
		TemplateID:    result.TemplateID,
		MissingParams: result.MissingParams,
		BestScore:     result.BestScore,
		DurationMs:    result.Duration.Milliseconds(),
	})
}

type reloadResponse struct {
	FilesRead int    `json:"files_read"`
	Loaded    int    `json:"loaded"`
	Replaced  int    `json:"replaced"`
	Skipped   int    `json:"skipped"`
	Detail    string `json:"detail,omitempty"`
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if s.reloader == nil {
		writeError(w, http.StatusNotImplemented, "reload not configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	report, err := s.reloader.Reload(ctx)
	if err != nil {
		s.logger.Error("Template reload failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "reload failed")
		return
	}

	writeJSON(w, http.StatusOK, reloadResponse{
		FilesRead: report.FilesRead,
		Loaded:    report.Loaded,
		Replaced:  report.Replaced,
		Skipped:   len(report.Skipped),
		Detail:    report.String(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// LibraryReloader is the production Reloader: re-read the library paths,
// swap the store atomically and rebuild the vector index.
type LibraryReloader struct {
	loader  *template.Loader
	store   *template.Store
	matcher *matcher.Matcher
	paths   []string
}

func NewLibraryReloader(loader *template.Loader, store *template.Store, m *matcher.Matcher, paths []string) *LibraryReloader {
	return &LibraryReloader{loader: loader, store: store, matcher: m, paths: paths}
}

func (r *LibraryReloader) Reload(ctx context.Context) (*template.LoadReport, error) {
	set, report, err := r.loader.Load(r.paths)
	if err != nil {
		return nil, err
	}
	r.store.Replace(set)
	if err := r.matcher.BuildIndex(ctx); err != nil {
		return nil, err
	}
	return report, nil
}
