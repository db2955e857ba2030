package uploads

import (
	"context"

	"github.com/maneesh/labuploads/internal/models"
	"github.com/maneesh/labuploads/internal/pathguard"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Lookup returns the ownership record of the upload at path. Only the owner
// and privileged users may read it.
func (s *Service) Lookup(ctx context.Context, callerUID, path string) (rec *models.Upload, err error) {
	ctx, span := tracer.Start(ctx, "uploads.lookup",
		trace.WithAttributes(
			attribute.String("caller_uid", callerUID),
			attribute.String("path", path),
		),
	)
	defer span.End()
	defer s.observe(span, "lookup", &err)

	if err := s.validate(ctx, pathguard.One(path)); err != nil {
		return nil, err
	}

	rec, err = s.index.Record(ctx, path)
	if err != nil {
		return nil, opErr("index.record", path, err)
	}
	if rec != nil && rec.Owner == callerUID {
		return rec, nil
	}

	privileged, err := s.privileges.IsPrivileged(ctx, callerUID)
	if err != nil {
		return nil, opErr("privileges.is_privileged", "", err)
	}
	if !privileged {
		return nil, ErrNoPrivileges
	}
	if rec == nil {
		return nil, ErrNotAssociated
	}
	return rec, nil
}
