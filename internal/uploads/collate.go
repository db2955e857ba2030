package uploads

import (
	"context"
	"path/filepath"

	"github.com/maneesh/labuploads/internal/batch"
	"github.com/maneesh/labuploads/internal/index"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Collate adds every upload in uid's index to archive, oldest first, one
// page at a time. Entries are named after the upload's base file name.
// Indexes are not modified.
func (s *Service) Collate(ctx context.Context, uid string, archive Archive) (err error) {
	ctx, span := tracer.Start(ctx, "uploads.collate",
		trace.WithAttributes(attribute.String("uid", uid)),
	)
	defer span.End()
	defer s.observe(span, "collate", &err)

	expected, err := s.index.Count(ctx, uid)
	if err != nil {
		return opErr("index.count", "", err)
	}
	span.SetAttributes(attribute.Int64("expected_count", expected))

	var total int
	err = batch.ProcessSortedSet(ctx, s.index, index.UserKey(uid), s.exportBatchSize, func(ctx context.Context, page []string) error {
		for _, entry := range page {
			abs := s.guard.Resolve(entry)
			if !s.guard.Contains(abs) {
				return ErrInvalidPath
			}
			if err := archive.AddFile(ctx, abs, filepath.Base(entry)); err != nil {
				return opErr("archive.add_file", entry, err)
			}
		}
		total += len(page)
		s.metrics.Archived(len(page))
		return nil
	})
	if err != nil {
		return err
	}

	span.SetAttributes(attribute.Int("entry_count", total))
	if int64(total) != expected {
		// associations or deletions raced with the export
		s.logger.Info().Str("uid", uid).Int64("expected", expected).Int("entries", total).Msg("upload index changed during export")
	}
	s.logger.Debug().Str("uid", uid).Int("entries", total).Msg("uploads collated")
	return nil
}
