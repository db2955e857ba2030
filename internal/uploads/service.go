// Package uploads manages the lifecycle of user-owned uploads: associating an
// upload with its owner, deleting uploads with their cross references, and
// exporting a user's uploads into an archive.
package uploads

import (
	"context"
	"errors"

	"github.com/maneesh/labuploads/internal/batch"
	"github.com/maneesh/labuploads/internal/metrics"
	"github.com/maneesh/labuploads/internal/models"
	"github.com/maneesh/labuploads/internal/pathguard"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("labuploads-uploads")

// Index is the ownership and reference index
type Index interface {
	Associate(ctx context.Context, uid, path string) error
	IsOwnedBy(ctx context.Context, uid string, paths []string) ([]bool, error)
	Remove(ctx context.Context, uid, path string) error
	ReferencingPosts(ctx context.Context, paths []string) ([]string, error)
	Record(ctx context.Context, path string) (*models.Upload, error)
	Count(ctx context.Context, uid string) (int64, error)
	batch.PageSource
}

// FileStore holds the uploaded bytes. Delete must tolerate missing files.
type FileStore interface {
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
}

// Privileges answers whether a user is an administrator or global moderator
type Privileges interface {
	IsPrivileged(ctx context.Context, uid string) (bool, error)
}

// PostReferences removes a post's reference to an upload. Must be idempotent.
type PostReferences interface {
	Dissociate(ctx context.Context, pid, path string) error
}

// Archive receives exported files
type Archive interface {
	AddFile(ctx context.Context, path, name string) error
}

// Service runs upload lifecycle operations. It is safe for concurrent use;
// concurrent operations on the same upload are not serialized.
type Service struct {
	guard      *pathguard.Guard
	index      Index
	files      FileStore
	privileges Privileges
	posts      PostReferences

	logger          zerolog.Logger
	metrics         *metrics.Metrics
	deleteBatchSize int
	exportBatchSize int
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger used for per-upload trace lines
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = l.With().Str("component", "uploads").Logger()
	}
}

// WithMetrics enables Prometheus counters
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithDeleteBatchSize overrides the number of uploads deleted per chunk
func WithDeleteBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.deleteBatchSize = n
		}
	}
}

// WithExportBatchSize overrides the page size used when exporting
func WithExportBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.exportBatchSize = n
		}
	}
}

// NewService creates the lifecycle service for uploads stored under root
func NewService(root string, index Index, files FileStore, privileges Privileges, posts PostReferences, opts ...Option) (*Service, error) {
	guard, err := pathguard.New(root, files)
	if err != nil {
		return nil, err
	}

	s := &Service{
		guard:           guard,
		index:           index,
		files:           files,
		privileges:      privileges,
		posts:           posts,
		logger:          zerolog.Nop(),
		deleteBatchSize: batch.DefaultArraySize,
		exportBatchSize: batch.DefaultSortedSetSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Guard exposes the path guard for callers that resolve upload paths themselves
func (s *Service) Guard() *pathguard.Guard {
	return s.guard
}

// Associate records uid as the owner of the upload at path
func (s *Service) Associate(ctx context.Context, uid, path string) (err error) {
	ctx, span := tracer.Start(ctx, "uploads.associate",
		trace.WithAttributes(
			attribute.String("uid", uid),
			attribute.String("path", path),
		),
	)
	defer span.End()
	defer s.observe(span, "associate", &err)

	if err := s.validate(ctx, pathguard.One(path)); err != nil {
		return err
	}

	if err := s.index.Associate(ctx, uid, path); err != nil {
		return opErr("index.associate", path, err)
	}

	s.metrics.Associated()
	s.logger.Debug().Str("uid", uid).Str("path", path).Msg("upload associated")
	return nil
}

func (s *Service) validate(ctx context.Context, paths []string) error {
	err := s.guard.Validate(ctx, paths)
	if err == nil || errors.Is(err, ErrInvalidPath) || errors.Is(err, ErrWrongParameterType) {
		return err
	}
	return opErr("files.exists", "", err)
}

func (s *Service) observe(span trace.Span, op string, err *error) {
	if *err == nil {
		return
	}
	span.RecordError(*err)
	s.metrics.Failed(op)
	s.logger.Warn().Err(*err).Str("op", op).Msg("upload operation failed")
}
