package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AssociateHandler records the caller as owner of an already stored upload
type AssociateHandler struct {
	svc    Lifecycle
	logger zerolog.Logger
}

// NewAssociateHandler creates a new associate handler
func NewAssociateHandler(svc Lifecycle, logger zerolog.Logger) *AssociateHandler {
	return &AssociateHandler{svc: svc, logger: logger}
}

// AssociateResponse represents the response for an associate operation
type AssociateResponse struct {
	UID     string `json:"uid"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ServeHTTP handles PUT /uploads?path=relative/path
func (ah *AssociateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "associate_upload",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	logger, requestID := requestLogger(w, r, ah.logger)

	uid, ok := callerID(r)
	if !ok {
		writeError(w, logger, requestID, http.StatusUnauthorized, errors.New("missing caller id"))
		return
	}

	path := r.URL.Query().Get("path")
	span.SetAttributes(
		attribute.String("uid", uid),
		attribute.String("path", path),
	)

	if err := ah.svc.Associate(ctx, uid, path); err != nil {
		span.RecordError(err)
		writeError(w, logger, requestID, statusFor(err), err)
		return
	}

	logger.Info().Str("uid", uid).Str("upload", path).Msg("upload associated")
	writeJSON(w, http.StatusOK, AssociateResponse{
		UID:     uid,
		Path:    path,
		Message: "Upload associated",
	})
}
