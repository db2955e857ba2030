package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/maneesh/labuploads/internal/archive"
	"github.com/maneesh/labuploads/internal/uploads"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewRouter wires the upload routes. metrics may be nil.
func NewRouter(svc Lifecycle, privileges uploads.Privileges, files archive.Opener, logger zerolog.Logger, metrics http.Handler) *mux.Router {
	router := mux.NewRouter()

	// Health check endpoint (no tracing needed)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	if metrics != nil {
		router.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	logger = logger.With().Str("component", "http").Logger()

	router.Handle("/uploads",
		otelhttp.NewHandler(NewAssociateHandler(svc, logger), "PUT /uploads")).Methods(http.MethodPut)
	router.Handle("/uploads",
		otelhttp.NewHandler(NewLookupHandler(svc, logger), "GET /uploads")).Methods(http.MethodGet)
	router.Handle("/uploads",
		otelhttp.NewHandler(NewDeleteHandler(svc, logger), "DELETE /uploads")).Methods(http.MethodDelete)
	router.Handle("/users/{uid}/uploads.zip",
		otelhttp.NewHandler(NewExportHandler(svc, privileges, files, logger), "GET /users/{uid}/uploads.zip")).Methods(http.MethodGet)

	return router
}
