package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LocalStore serves uploads from the local filesystem.
// Paths handed to it are absolute and already confined by the caller.
type LocalStore struct{}

// NewLocalStore creates a filesystem-backed file store
func NewLocalStore() *LocalStore {
	return &LocalStore{}
}

// Exists reports whether a regular file is present at path. Directories and
// other non-regular entries are never uploads.
func (ls *LocalStore) Exists(ctx context.Context, path string) (bool, error) {
	_, span := tracer.Start(ctx, "local.exists",
		trace.WithAttributes(attribute.String("path", path)),
	)
	defer span.End()

	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		span.SetAttributes(attribute.Bool("found", false))
		return false, nil
	} else if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to stat file: %w", err)
	}

	found := info.Mode().IsRegular()
	span.SetAttributes(attribute.Bool("found", found))
	return found, nil
}

// Delete removes the file at path. A missing file is not an error.
func (ls *LocalStore) Delete(ctx context.Context, path string) error {
	_, span := tracer.Start(ctx, "local.delete",
		trace.WithAttributes(attribute.String("path", path)),
	)
	defer span.End()

	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		span.RecordError(err)
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Open returns a reader over the file at path
func (ls *LocalStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	_, span := tracer.Start(ctx, "local.open",
		trace.WithAttributes(attribute.String("path", path)),
	)
	defer span.End()

	f, err := os.Open(path)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}
