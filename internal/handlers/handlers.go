package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/maneesh/labuploads/internal/models"
	"github.com/maneesh/labuploads/internal/uploads"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("labuploads-handlers")

// UserHeader carries the authenticated caller id set by the upstream gateway
const UserHeader = "X-User-ID"

// Lifecycle is the upload service the handlers drive
type Lifecycle interface {
	Associate(ctx context.Context, uid, path string) error
	Delete(ctx context.Context, callerUID, ownerUID string, names []string) error
	Collate(ctx context.Context, uid string, archive uploads.Archive) error
	Lookup(ctx context.Context, callerUID, path string) (*models.Upload, error)
}

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
}

// requestLogger tags the logger with a fresh request id and echoes it back
func requestLogger(w http.ResponseWriter, r *http.Request, base zerolog.Logger) (zerolog.Logger, string) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	w.Header().Set("X-Request-ID", requestID)
	return base.With().
		Str("request_id", requestID).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Logger(), requestID
}

func callerID(r *http.Request) (string, bool) {
	uid := r.Header.Get(UserHeader)
	return uid, uid != ""
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, uploads.ErrWrongParameterType), errors.Is(err, uploads.ErrInvalidPath):
		return http.StatusBadRequest
	case errors.Is(err, uploads.ErrNoPrivileges):
		return http.StatusForbidden
	case errors.Is(err, uploads.ErrNotAssociated):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger zerolog.Logger, requestID string, status int, err error) {
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Msg("request failed")
		// collaborator failures may carry paths and backend details
		msg = http.StatusText(status)
	} else {
		logger.Info().Err(err).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, ErrorResponse{Error: msg, RequestID: requestID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
