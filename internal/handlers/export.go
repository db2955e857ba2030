package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/maneesh/labuploads/internal/archive"
	"github.com/maneesh/labuploads/internal/uploads"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ExportHandler streams a user's uploads as a zip archive
type ExportHandler struct {
	svc        Lifecycle
	privileges uploads.Privileges
	files      archive.Opener
	logger     zerolog.Logger
}

// NewExportHandler creates a new export handler
func NewExportHandler(svc Lifecycle, privileges uploads.Privileges, files archive.Opener, logger zerolog.Logger) *ExportHandler {
	return &ExportHandler{
		svc:        svc,
		privileges: privileges,
		files:      files,
		logger:     logger,
	}
}

// ServeHTTP handles GET /users/{uid}/uploads.zip
func (eh *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "export_uploads",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	logger, requestID := requestLogger(w, r, eh.logger)

	caller, ok := callerID(r)
	if !ok {
		writeError(w, logger, requestID, http.StatusUnauthorized, errors.New("missing caller id"))
		return
	}

	uid := mux.Vars(r)["uid"]
	if uid == "" {
		writeError(w, logger, requestID, http.StatusBadRequest, errors.New("missing uid in path"))
		return
	}
	span.SetAttributes(
		attribute.String("caller_uid", caller),
		attribute.String("uid", uid),
	)

	// only the user themselves or a privileged user may export
	if caller != uid {
		privileged, err := eh.privileges.IsPrivileged(ctx, caller)
		if err != nil {
			span.RecordError(err)
			writeError(w, logger, requestID, http.StatusInternalServerError, err)
			return
		}
		if !privileged {
			writeError(w, logger, requestID, http.StatusForbidden, uploads.ErrNoPrivileges)
			return
		}
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s_uploads.zip\"", uid))
	w.WriteHeader(http.StatusOK)

	z := archive.NewZip(w, eh.files)
	if err := eh.svc.Collate(ctx, uid, z); err != nil {
		// headers are already sent; the truncated archive signals the failure
		span.RecordError(err)
		logger.Error().Err(err).Str("uid", uid).Int("entries", z.Count()).Msg("export aborted")
		return
	}
	if err := z.Close(); err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Str("uid", uid).Msg("failed to finalize archive")
		return
	}

	logger.Info().Str("uid", uid).Int("entries", z.Count()).Msg("uploads exported")
}
