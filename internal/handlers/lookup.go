package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LookupHandler returns the ownership record of one upload
type LookupHandler struct {
	svc    Lifecycle
	logger zerolog.Logger
}

// NewLookupHandler creates a new lookup handler
func NewLookupHandler(svc Lifecycle, logger zerolog.Logger) *LookupHandler {
	return &LookupHandler{svc: svc, logger: logger}
}

// ServeHTTP handles GET /uploads?path=relative/path
func (lh *LookupHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "lookup_upload",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	logger, requestID := requestLogger(w, r, lh.logger)

	caller, ok := callerID(r)
	if !ok {
		writeError(w, logger, requestID, http.StatusUnauthorized, errors.New("missing caller id"))
		return
	}

	path := r.URL.Query().Get("path")
	span.SetAttributes(
		attribute.String("caller_uid", caller),
		attribute.String("path", path),
	)

	rec, err := lh.svc.Lookup(ctx, caller, path)
	if err != nil {
		span.RecordError(err)
		writeError(w, logger, requestID, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
