package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maneesh/labuploads/internal/archive"
	"github.com/maneesh/labuploads/internal/config"
	"github.com/maneesh/labuploads/internal/handlers"
	"github.com/maneesh/labuploads/internal/index"
	"github.com/maneesh/labuploads/internal/metrics"
	"github.com/maneesh/labuploads/internal/posts"
	"github.com/maneesh/labuploads/internal/storage"
	"github.com/maneesh/labuploads/internal/tracing"
	"github.com/maneesh/labuploads/internal/uploads"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// fileStore is what both storage backends provide
type fileStore interface {
	uploads.FileStore
	archive.Opener
}

func newLogger(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("Failed to load config")
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat).With().Str("service", cfg.ServiceName).Logger()
	logger.Info().
		Str("port", cfg.ServicePort).
		Str("upload_path", cfg.UploadPath).
		Str("file_store", cfg.FileStore).
		Msg("Starting upload service")

	ctx := context.Background()

	// Initialize OpenTelemetry tracing
	shutdownTracer, err := tracing.InitTracer(ctx, cfg.ServiceName, cfg.JaegerEndpoint, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize tracer")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			logger.Error().Err(err).Msg("Error shutting down tracer")
		}
	}()

	// Initialize the file store
	var files fileStore
	switch cfg.FileStore {
	case config.FileStoreMinIO:
		logger.Info().Str("endpoint", cfg.MinIOEndpoint).Msg("Connecting to MinIO...")
		files, err = storage.NewMinioClient(ctx,
			cfg.MinIOEndpoint,
			cfg.MinIOAccessKey,
			cfg.MinIOSecretKey,
			cfg.MinIOBucketName,
			cfg.UploadPath,
			cfg.MinIOUseSSL,
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize MinIO client")
		}
	default:
		if err := os.MkdirAll(cfg.UploadPath, 0o755); err != nil {
			logger.Fatal().Err(err).Msg("Failed to create upload directory")
		}
		files = storage.NewLocalStore()
	}

	// Initialize TiDB client
	logger.Info().Msg("Connecting to TiDB...")
	tidbClient, err := storage.NewTiDBClient(ctx, cfg.GetDSN())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize TiDB client")
	}
	defer tidbClient.Close()

	// Initialize Redis client
	logger.Info().Str("addr", cfg.GetRedisAddr()).Msg("Connecting to Redis...")
	redisClient, err := storage.NewRedisClient(ctx, cfg.GetRedisAddr(), cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize Redis client")
	}
	defer redisClient.Close()

	uploadIndex := index.New(redisClient.Cmdable())
	postRefs := posts.NewReferences(tidbClient, uploadIndex)

	registry := prometheus.NewRegistry()
	serviceMetrics := metrics.New(registry)

	svc, err := uploads.NewService(cfg.UploadPath, uploadIndex, files, tidbClient, postRefs,
		uploads.WithLogger(logger),
		uploads.WithMetrics(serviceMetrics),
		uploads.WithDeleteBatchSize(cfg.DeleteBatchSize),
		uploads.WithExportBatchSize(cfg.ExportBatchSize),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize upload service")
	}

	router := handlers.NewRouter(svc, tidbClient, files, logger,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Create HTTP server
	srv := &http.Server{
		Addr:        ":" + cfg.ServicePort,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// exports stream large archives
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().Str("port", cfg.ServicePort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited")
}
