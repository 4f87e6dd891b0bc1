package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"memorymap-backend/application/services"
	pkgerrors "memorymap-backend/pkg/errors"
)

// MemoryHandler serves the memory collection of the caller.
type MemoryHandler struct {
	handlerBase
	queries *services.MemoryQueryService
}

// NewMemoryHandler creates a new memory handler
func NewMemoryHandler(sessions Sessions, queries *services.MemoryQueryService, logger *zap.Logger, errorHandler *pkgerrors.ErrorHandler) *MemoryHandler {
	return &MemoryHandler{
		handlerBase: handlerBase{sessions: sessions, logger: logger, errorHandler: errorHandler},
		queries:     queries,
	}
}

// ListMemories handles GET /api/v1/memories
func (h *MemoryHandler) ListMemories(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	snap, err := h.queries.List(r.Context(), s.Snapshots())
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, MemoryListResponse{
		Sequence: snap.Sequence(),
		Count:    snap.Len(),
		Memories: snap.Memories(),
	})
}

// GetMemory handles GET /api/v1/memories/{memoryID}
func (h *MemoryHandler) GetMemory(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	m, err := h.queries.Get(r.Context(), s.Snapshots(), chi.URLParam(r, "memoryID"))
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// DeleteMemory handles DELETE /api/v1/memories/{memoryID}
func (h *MemoryHandler) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := h.queries.Delete(r.Context(), s.UserID(), chi.URLParam(r, "memoryID")); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
