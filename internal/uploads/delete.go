package uploads

import (
	"context"
	"errors"

	"github.com/maneesh/labuploads/internal/batch"
	"github.com/maneesh/labuploads/internal/pathguard"
	"github.com/maneesh/labuploads/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// DeleteOne deletes a single upload owned by ownerUID
func (s *Service) DeleteOne(ctx context.Context, callerUID, ownerUID, name string) error {
	return s.Delete(ctx, callerUID, ownerUID, pathguard.One(name))
}

// Delete removes uploads owned by ownerUID from disk, from the owner's index
// and from every post referencing them.
//
// Paths and authorization are checked before anything is mutated. The caller
// must either have every name in its own index or be privileged. Names are
// then processed in chunks; a failure stops at the current chunk and earlier
// chunks stay deleted.
func (s *Service) Delete(ctx context.Context, callerUID, ownerUID string, names []string) (err error) {
	ctx, span := tracer.Start(ctx, "uploads.delete",
		trace.WithAttributes(
			attribute.String("caller_uid", callerUID),
			attribute.String("owner_uid", ownerUID),
			attribute.Int("upload_count", len(names)),
		),
	)
	defer span.End()
	defer s.observe(span, "delete", &err)

	if err := s.validate(ctx, names); err != nil {
		return err
	}

	if err := s.authorize(ctx, callerUID, names); err != nil {
		return err
	}

	return batch.ProcessArray(ctx, names, s.deleteBatchSize, func(ctx context.Context, chunk []string) error {
		return s.deleteChunk(ctx, ownerUID, chunk)
	})
}

// authorize checks ownership against the caller's own index and the caller's
// privileges concurrently.
func (s *Service) authorize(ctx context.Context, callerUID string, names []string) error {
	var (
		owned      []bool
		privileged bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		owned, err = s.index.IsOwnedBy(gctx, callerUID, names)
		return opErr("index.is_owned_by", "", err)
	})
	g.Go(func() error {
		var err error
		privileged, err = s.privileges.IsPrivileged(gctx, callerUID)
		return opErr("privileges.is_privileged", "", err)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if privileged {
		return nil
	}
	if len(owned) != len(names) {
		return ErrNoPrivileges
	}
	for _, ok := range owned {
		if !ok {
			return ErrNoPrivileges
		}
	}
	return nil
}

func (s *Service) deleteChunk(ctx context.Context, ownerUID string, chunk []string) error {
	ctx, span := tracer.Start(ctx, "uploads.delete_chunk",
		trace.WithAttributes(attribute.Int("chunk_size", len(chunk))),
	)
	defer span.End()

	// the index entry is only dropped once both files are gone
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range chunk {
		g.Go(func() error {
			if err := s.deleteFiles(gctx, name); err != nil {
				return err
			}
			return opErr("index.remove", name, s.index.Remove(gctx, ownerUID, name))
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return err
	}

	pids, err := s.index.ReferencingPosts(ctx, chunk)
	if err != nil {
		span.RecordError(err)
		return opErr("index.referencing_posts", "", err)
	}

	// Every name in the chunk is dissociated from every post found for the chunk.
	g, gctx = errgroup.WithContext(ctx)
	for _, pid := range pids {
		for _, name := range chunk {
			g.Go(func() error {
				return opErr("posts.dissociate", name, s.posts.Dissociate(gctx, pid, name))
			})
		}
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return err
	}

	for _, name := range chunk {
		s.logger.Debug().Str("owner_uid", ownerUID).Str("path", name).Msg("upload deleted")
	}
	span.SetAttributes(attribute.Int("pid_count", len(pids)))
	s.metrics.Deleted(len(chunk))
	s.metrics.Dissociated(len(pids) * len(chunk))
	return nil
}

// deleteFiles removes the upload and its resized variant. Both deletions are
// always attempted.
func (s *Service) deleteFiles(ctx context.Context, name string) error {
	abs := s.guard.Resolve(name)
	err := errors.Join(
		s.files.Delete(ctx, abs),
		s.files.Delete(ctx, storage.AppendToFileName(abs, storage.ResizedSuffix)),
	)
	return opErr("files.delete", name, err)
}
