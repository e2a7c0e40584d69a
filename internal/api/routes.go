// Package api provides the HTTP API for treenote.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"treenote/internal/auth"
	"treenote/internal/cfg"
	"treenote/internal/db"
	"treenote/internal/tree"
)

// maxBodyBytes bounds request bodies; note content is the largest field.
const maxBodyBytes = 4 << 20

// Handler wraps dependencies for HTTP handlers.
type Handler struct {
	db     *db.DB
	engine *tree.Engine
	cfg    *cfg.Config
	tokens *auth.TokenService
	log    zerolog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(database *db.DB, engine *tree.Engine, config *cfg.Config, tokens *auth.TokenService, log zerolog.Logger) *Handler {
	return &Handler{
		db:     database,
		engine: engine,
		cfg:    config,
		tokens: tokens,
		log:    log,
	}
}

// NewRouter creates the HTTP router with all routes registered.
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /readyz", h.Ready)

	// Auth (public)
	mux.HandleFunc("POST /api/auth/register", h.Register)
	mux.HandleFunc("POST /api/auth/login", h.Login)

	// Auth (authenticated)
	mux.Handle("GET /api/auth/me", h.WithAuth(http.HandlerFunc(h.GetMe)))

	// Nodes (authenticated). The literal reorder path is more specific than
	// {id} and wins regardless of registration order.
	mux.Handle("GET /api/nodes", h.WithAuth(http.HandlerFunc(h.ListNodes)))
	mux.Handle("GET /api/tree", h.WithAuth(http.HandlerFunc(h.GetTree)))
	mux.Handle("POST /api/nodes", h.WithAuth(http.HandlerFunc(h.CreateNode)))
	mux.Handle("PATCH /api/nodes/reorder", h.WithAuth(http.HandlerFunc(h.MoveNode)))
	mux.Handle("GET /api/nodes/{id}", h.WithAuth(http.HandlerFunc(h.GetNode)))
	mux.Handle("PATCH /api/nodes/{id}", h.WithAuth(http.HandlerFunc(h.UpdateNode)))
	mux.Handle("DELETE /api/nodes/{id}", h.WithAuth(http.HandlerFunc(h.DeleteNode)))

	return mux
}

// ----- Health -----

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: h.cfg.Version,
	})
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.log.Warn().Err(err).Msg("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:  "not ready",
			Version: h.cfg.Version,
		})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ready",
		Version: h.cfg.Version,
	})
}

// ----- Helpers -----

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Details = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding body: %w", err)
	}
	return nil
}

// writeEngineError maps tree engine failures onto HTTP statuses.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tree.ErrNotFound):
		writeError(w, http.StatusNotFound, "Node not found", nil)
	case errors.Is(err, tree.ErrInvalidOperation):
		writeError(w, http.StatusUnprocessableEntity, "invalid operation", err)
	case errors.Is(err, tree.ErrCycleDetected):
		writeError(w, http.StatusConflict, "cycle detected", err)
	case errors.Is(err, tree.ErrConstraintViolation):
		writeError(w, http.StatusConflict, "constraint violation", err)
	case errors.Is(err, db.ErrBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "store busy, retry", nil)
	default:
		h.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}
