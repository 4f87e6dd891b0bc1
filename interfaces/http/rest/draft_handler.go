package rest

import (
	"net/http"

	"go.uber.org/zap"

	pkgerrors "memorymap-backend/pkg/errors"
)

// DraftHandler drives the caller's memory draft.
type DraftHandler struct {
	handlerBase
}

// NewDraftHandler creates a new draft handler
func NewDraftHandler(sessions Sessions, logger *zap.Logger, errorHandler *pkgerrors.ErrorHandler) *DraftHandler {
	return &DraftHandler{
		handlerBase: handlerBase{sessions: sessions, logger: logger, errorHandler: errorHandler},
	}
}

// GetDraft handles GET /api/v1/draft
func (h *DraftHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.Draft().Draft())
}

// CaptureLocation handles PUT /api/v1/draft/location. The address is
// resolved in the background, so the response carries the draft as it
// stands when the lookup starts.
func (h *DraftHandler) CaptureLocation(w http.ResponseWriter, r *http.Request) {
	var req LocationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Draft().CaptureLocation(*req.Lat, *req.Lng); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, s.Draft().Draft())
}

// SetDescription handles PUT /api/v1/draft/description
func (h *DraftHandler) SetDescription(w http.ResponseWriter, r *http.Request) {
	var req DescriptionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Draft().SetDescription(req.Description); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.Draft().Draft())
}

// Commit handles POST /api/v1/draft/commit
func (h *DraftHandler) Commit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	m, err := s.Draft().Commit(r.Context())
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

// Cancel handles DELETE /api/v1/draft
func (h *DraftHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Draft().Cancel(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
