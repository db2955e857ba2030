package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DeleteHandler deletes one or more uploads of an owner
type DeleteHandler struct {
	svc    Lifecycle
	logger zerolog.Logger
}

// NewDeleteHandler creates a new delete handler
func NewDeleteHandler(svc Lifecycle, logger zerolog.Logger) *DeleteHandler {
	return &DeleteHandler{svc: svc, logger: logger}
}

// DeleteRequest names the uploads to delete. Name is the single-upload
// shorthand for Names.
type DeleteRequest struct {
	OwnerUID string   `json:"owner_uid"`
	Name     string   `json:"name,omitempty"`
	Names    []string `json:"names,omitempty"`
}

func (dr *DeleteRequest) names() []string {
	if dr.Name != "" {
		return append([]string{dr.Name}, dr.Names...)
	}
	return dr.Names
}

// DeleteResponse represents the response for a delete operation
type DeleteResponse struct {
	OwnerUID string `json:"owner_uid"`
	Deleted  int    `json:"deleted"`
	Message  string `json:"message"`
}

// ServeHTTP handles DELETE /uploads
func (dh *DeleteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "delete_uploads",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	logger, requestID := requestLogger(w, r, dh.logger)

	caller, ok := callerID(r)
	if !ok {
		writeError(w, logger, requestID, http.StatusUnauthorized, errors.New("missing caller id"))
		return
	}

	var req DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, logger, requestID, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.OwnerUID == "" {
		req.OwnerUID = caller
	}

	names := req.names()
	span.SetAttributes(
		attribute.String("caller_uid", caller),
		attribute.String("owner_uid", req.OwnerUID),
		attribute.Int("upload_count", len(names)),
	)

	if err := dh.svc.Delete(ctx, caller, req.OwnerUID, names); err != nil {
		span.RecordError(err)
		writeError(w, logger, requestID, statusFor(err), err)
		return
	}

	logger.Info().
		Str("caller_uid", caller).
		Str("owner_uid", req.OwnerUID).
		Int("count", len(names)).
		Msg("uploads deleted")
	writeJSON(w, http.StatusOK, DeleteResponse{
		OwnerUID: req.OwnerUID,
		Deleted:  len(names),
		Message:  "Uploads deleted",
	})
}
