// Package server exposes the engine surface over HTTP. The API is thin
// glue: it translates requests into engine calls and serializes the results.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scarecr0w12/ai-server-management/internal/engine"
	"github.com/scarecr0w12/ai-server-management/internal/template"
)

// Server routes HTTP requests to the workflow engine
type Server struct {
	logger *zap.Logger
	engine *engine.Engine
	router chi.Router
}

// New builds the HTTP server around the given engine
func New(eng *engine.Engine, logger *zap.Logger) *Server {
	s := &Server{
		logger: logger.Named("http"),
		engine: eng,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/api/templates", s.handleTemplates)
	r.Route("/api/workflows", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)
		r.Post("/{id}/execute", s.handleExecute)
	})
	s.router = r

	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"templates": template.Names()})
}

type createRequest struct {
	ID       string `json:"id"`
	ServerID string `json:"server_id"`
	Template string `json:"template"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ServerID == "" || req.Template == "" {
		s.writeError(w, http.StatusBadRequest, "server_id and template are required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	if !s.engine.Create(req.ID, req.ServerID, req.Template) {
		s.writeError(w, http.StatusNotFound, "unknown template: "+req.Template)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "id")

	summary, err := s.engine.Execute(r.Context(), workflowID)
	switch {
	case errors.Is(err, engine.ErrWorkflowNotFound):
		s.writeError(w, http.StatusNotFound, "workflow not found")
		return
	case errors.Is(err, engine.ErrWorkflowRunning):
		s.writeError(w, http.StatusConflict, "workflow already running")
		return
	case err != nil:
		s.logger.Error("Workflow execution failed",
			zap.String("workflow_id", workflowID),
			zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "execution failed")
		return
	}

	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"workflows": s.engine.ListActive(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
