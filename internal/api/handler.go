package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/recall/internal/engine"
	"github.com/nidhogg/recall/internal/knowledge"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engine *engine.Engine
	logger *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(eng *engine.Engine, logger *zap.Logger) *Handler {
	return &Handler{engine: eng, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/stats", h.stats)

		r.Post("/ingest", h.ingest)
		r.Post("/ingest/batch", h.ingestBatch)
		r.Post("/search", h.search)

		r.Get("/sessions", h.listSessions)
		r.Post("/sessions/{id}/turns", h.appendTurn)
		r.Get("/sessions/{id}/context", h.getContext)
		r.Post("/sessions/{id}/consolidate", h.consolidate)
		r.Delete("/sessions/{id}", h.deleteSession)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type ingestRequest struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type ingestResponse struct {
	ID      string `json:"id"`
	Deduped bool   `json:"deduped"`
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	id, deduped, err := h.engine.Ingest(r.Context(), req.Text, req.Metadata)
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if deduped {
		status = http.StatusOK
	}
	writeJSON(w, status, ingestResponse{ID: id, Deduped: deduped})
}

type ingestBatchRequest struct {
	Documents []engine.Document `json:"documents"`
}

func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var req ingestBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if len(req.Documents) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "documents are required"})
		return
	}
	results := h.engine.IngestBatch(r.Context(), req.Documents)
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

type searchRequest struct {
	Query        string            `json:"query"`
	K            int               `json:"k,omitempty"`
	Filters      map[string]string `json:"filters,omitempty"`
	KeywordBoost float64           `json:"keyword_boost,omitempty"`
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.K <= 0 {
		req.K = 5
	}
	results, err := h.engine.RetrieveHybrid(r.Context(), req.Query, req.K, req.Filters, req.KeywordBoost)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.engine.Sessions(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

type turnRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (h *Handler) appendTurn(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.engine.AppendTurn(r.Context(), sessionID, req.Role, req.Content); err != nil {
		h.writeError(w, err)
		return
	}

	// Consolidation piggybacks on turn appends. A failure defers to a later
	// turn and never fails the append.
	consolidated, err := h.engine.MaybeConsolidate(r.Context(), sessionID)
	if err != nil {
		h.logger.Warn("consolidation deferred",
			zap.String("session", sessionID), zap.Error(err))
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"status":       "recorded",
		"consolidated": consolidated,
	})
}

func (h *Handler) getContext(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	query := r.URL.Query().Get("query")
	useRetrieval := true
	if v := r.URL.Query().Get("retrieval"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "retrieval must be a boolean, got " + strconv.Quote(v),
			})
			return
		}
		useRetrieval = parsed
	}

	c, err := h.engine.GetContext(r.Context(), sessionID, query, useRetrieval)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) consolidate(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	consolidated, err := h.engine.MaybeConsolidate(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"consolidated": consolidated})
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := h.engine.DeleteSession(r.Context(), sessionID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// writeError maps the error taxonomy onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, knowledge.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, knowledge.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, knowledge.ErrInvariant):
		status = http.StatusInternalServerError
	}
	if status >= 500 {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
