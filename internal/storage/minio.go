package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MinioClient serves uploads from an object bucket. Absolute paths under root
// map to object keys relative to root, so the same upload identifiers work
// against either backend.
type MinioClient struct {
	client     *minio.Client
	bucketName string
	root       string
}

// NewMinioClient initializes a new MinIO client
func NewMinioClient(ctx context.Context, endpoint, accessKey, secretKey, bucketName, root string, useSSL bool) (*MinioClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	mc := &MinioClient{
		client:     client,
		bucketName: bucketName,
		root:       filepath.Clean(root),
	}

	// Ensure bucket exists
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return mc, nil
}

func (mc *MinioClient) objectKey(path string) (string, error) {
	rel, err := filepath.Rel(mc.root, filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside upload root", path)
	}
	return filepath.ToSlash(rel), nil
}

func isDirMarker(key string) bool {
	return key == "" || strings.HasSuffix(key, "/")
}

// Exists reports whether an object backs the given path
func (mc *MinioClient) Exists(ctx context.Context, path string) (bool, error) {
	ctx, span := tracer.Start(ctx, "minio.stat_object",
		trace.WithAttributes(attribute.String("path", path)),
	)
	defer span.End()

	key, err := mc.objectKey(path)
	if err != nil {
		span.RecordError(err)
		return false, err
	}

	info, err := mc.client.StatObject(ctx, mc.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			span.SetAttributes(attribute.Bool("found", false))
			return false, nil
		}
		span.RecordError(err)
		return false, fmt.Errorf("failed to stat object: %w", err)
	}

	// folder markers are not uploads
	found := !isDirMarker(info.Key)
	span.SetAttributes(attribute.Bool("found", found))
	return found, nil
}

// Delete removes the object behind path; removing a missing object succeeds
func (mc *MinioClient) Delete(ctx context.Context, path string) error {
	ctx, span := tracer.Start(ctx, "minio.remove_object",
		trace.WithAttributes(attribute.String("path", path)),
	)
	defer span.End()

	key, err := mc.objectKey(path)
	if err != nil {
		span.RecordError(err)
		return err
	}

	err = mc.client.RemoveObject(ctx, mc.bucketName, key, minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
		span.RecordError(err)
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}

// Open streams the object behind path
func (mc *MinioClient) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	ctx, span := tracer.Start(ctx, "minio.get_object",
		trace.WithAttributes(attribute.String("path", path)),
	)
	defer span.End()

	key, err := mc.objectKey(path)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	object, err := mc.client.GetObject(ctx, mc.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get object: %w", err)
	}

	return object, nil
}
