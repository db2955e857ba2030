// Package posts maintains the links between posts and the uploads they embed.
package posts

import (
	"context"
	"fmt"

	"github.com/maneesh/labuploads/internal/models"
)

// Table is the relational record of post/upload links
type Table interface {
	CreatePostUpload(ctx context.Context, ref *models.PostUpload) error
	DeletePostUpload(ctx context.Context, ref *models.PostUpload) error
}

// ReferenceSet is the per-upload set of referencing post ids
type ReferenceSet interface {
	AddReference(ctx context.Context, path, pid string) error
	RemoveReference(ctx context.Context, path, pid string) error
}

// References keeps the post_uploads table and the upload reference sets in step
type References struct {
	table Table
	refs  ReferenceSet
}

// NewReferences creates the post reference collaborator
func NewReferences(table Table, refs ReferenceSet) *References {
	return &References{table: table, refs: refs}
}

// Associate records that post pid embeds the upload at path
func (r *References) Associate(ctx context.Context, pid, path string) error {
	if err := r.table.CreatePostUpload(ctx, &models.PostUpload{PostID: pid, Path: path}); err != nil {
		return err
	}
	if err := r.refs.AddReference(ctx, path, pid); err != nil {
		return fmt.Errorf("failed to index post %s reference: %w", pid, err)
	}
	return nil
}

// Dissociate removes post pid's reference to path. Removing a link that does
// not exist succeeds.
func (r *References) Dissociate(ctx context.Context, pid, path string) error {
	if err := r.table.DeletePostUpload(ctx, &models.PostUpload{PostID: pid, Path: path}); err != nil {
		return err
	}
	if err := r.refs.RemoveReference(ctx, path, pid); err != nil {
		return fmt.Errorf("failed to unindex post %s reference: %w", pid, err)
	}
	return nil
}
