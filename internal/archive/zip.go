// Package archive writes exported uploads into zip archives.
package archive

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zip"
)

// Opener reads stored files by absolute path
type Opener interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// Zip streams files into a zip archive. It is not safe for concurrent use.
type Zip struct {
	zw    *zip.Writer
	files Opener
	now   func() time.Time
	count int
}

// NewZip starts an archive written to w
func NewZip(w io.Writer, files Opener) *Zip {
	return &Zip{
		zw:    zip.NewWriter(w),
		files: files,
		now:   time.Now,
	}
}

// AddFile copies the file at path into the archive as name
func (z *Zip) AddFile(ctx context.Context, path, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := z.files.Open(ctx, path)
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := z.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: z.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to create archive entry %s: %w", name, err)
	}

	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("failed to write archive entry %s: %w", name, err)
	}

	z.count++
	return nil
}

// Count is the number of entries written so far
func (z *Zip) Count() int {
	return z.count
}

// Close writes the central directory. The underlying writer is not closed.
func (z *Zip) Close() error {
	return z.zw.Close()
}
