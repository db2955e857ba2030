package storage

import (
	"path/filepath"
	"strings"
)

// ResizedSuffix marks the derived variant stored next to an uploaded image
const ResizedSuffix = "-resized"

// AppendToFileName inserts suffix between the file name and its extension.
// "a/b.png" becomes "a/b-resized.png"; "a/b" becomes "a/b-resized".
func AppendToFileName(path, suffix string) string {
	if path == "" {
		return path
	}
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	// dotfiles like ".env" have no extension of their own
	if ext == base {
		ext = ""
	}
	return strings.TrimSuffix(path, ext) + suffix + ext
}
