package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"memorymap-backend/application/session"
	"memorymap-backend/domain/core/entities"
	"memorymap-backend/pkg/auth"
	pkgerrors "memorymap-backend/pkg/errors"
)

var validate = validator.New()

// Sessions opens and closes per-user sessions. *session.Manager
// implements it.
type Sessions interface {
	Open(userID string) (*session.Session, error)
	Close(userID string) bool
}

// LocationRequest is the body of PUT /draft/location.
type LocationRequest struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
}

// DescriptionRequest is the body of PUT /draft/description.
type DescriptionRequest struct {
	Description string `json:"description" validate:"max=2000"`
}

// MemoryListResponse is the body of GET /memories.
type MemoryListResponse struct {
	Sequence uint64            `json:"sequence"`
	Count    int               `json:"count"`
	Memories []entities.Memory `json:"memories"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return pkgerrors.NewValidationError("request body is not valid JSON").WithCause(err)
	}
	if err := validate.Struct(dst); err != nil {
		appErr := pkgerrors.NewValidationError("request validation failed")
		var fields validator.ValidationErrors
		if errors.As(err, &fields) {
			for _, f := range fields {
				appErr = appErr.WithDetail(strings.ToLower(f.Field()), f.Tag())
			}
		}
		return appErr
	}
	return nil
}

// handlerBase carries what every handler needs to resolve a session.
type handlerBase struct {
	sessions     Sessions
	logger       *zap.Logger
	errorHandler *pkgerrors.ErrorHandler
}

// session opens the caller's session, writing the error response itself
// when that fails.
func (h handlerBase) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.errorHandler.Handle(w, r, pkgerrors.NewUnauthorizedError("authentication required"))
		return nil, false
	}
	s, err := h.sessions.Open(userID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return nil, false
	}
	return s, true
}
