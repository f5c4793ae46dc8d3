// Package api exposes the engine's thin HTTP surface: message ingestion, the
// node catalog, and health. Chain management belongs to the surrounding
// platform; chains reach the store through seeding and definition files.
package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/diazhh/petroedge-sub001/internal/engine"
	"github.com/diazhh/petroedge-sub001/internal/message"
	"github.com/diazhh/petroedge-sub001/internal/node"
	"github.com/diazhh/petroedge-sub001/internal/types"
)

// maxBodyBytes caps request bodies; telemetry payloads are small.
const maxBodyBytes = 1 << 20

// Server holds the handlers' collaborators.
type Server struct {
	engine   *engine.Engine
	registry *node.Registry
	logger   *slog.Logger
}

// NewServer wires the API over an engine and its node registry.
func NewServer(eng *engine.Engine, registry *node.Registry, logger *slog.Logger) *Server {
	return &Server{engine: eng, registry: registry, logger: logger}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/catalog", s.handleCatalog)
		r.Post("/tenants/{tenantID}/messages", s.handleSubmitMessage)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.Definitions())
}

type submitRequest struct {
	SubjectType string         `json:"subjectType"`
	Originator  string         `json:"originator"`
	MessageType string         `json:"messageType,omitempty"`
	Payload     map[string]any `json:"payload"`
}

type submitResponse struct {
	Status      string `json:"status"`
	ExecutionID string `json:"executionId,omitempty"`
	ChainID     string `json:"chainId,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func (s *Server) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var req submitRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SubjectType == "" {
		s.writeError(w, http.StatusBadRequest, "subjectType is required")
		return
	}

	msg := message.New(tenantID, req.SubjectType, req.Originator, req.Payload)
	if req.MessageType != "" {
		msg.Meta.MessageType = req.MessageType
	}

	h, err := s.engine.Submit(r.Context(), msg)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusAccepted, submitResponse{
			Status:      "ACCEPTED",
			ExecutionID: h.ExecutionID.String(),
			ChainID:     h.ChainID.String(),
		})
	case types.IsCode(err, types.NO_MATCHING_CHAIN):
		// not an error for the producer, the platform just has no chain for it
		s.writeJSON(w, http.StatusOK, submitResponse{Status: "DROPPED"})
	case types.IsCode(err, types.EXECUTION_REJECTED):
		s.writeJSON(w, http.StatusTooManyRequests, submitResponse{
			Status: "REJECTED",
			Reason: err.Error(),
		})
	default:
		s.logger.Error("submit failed", "tenant", tenantID, "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response failed", "error", err)
	}
}
