// Package pathguard confines user-supplied upload identifiers to the upload root.
package pathguard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidPath is returned when a path escapes the root or does not exist.
	// It never names the offending path.
	ErrInvalidPath = errors.New("invalid path")

	// ErrWrongParameterType is returned for an empty path list or an empty path
	ErrWrongParameterType = errors.New("wrong parameter type")
)

// ExistenceChecker is the part of the file store the guard needs. Exists must
// report false for anything that is not a regular file.
type ExistenceChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Guard resolves relative upload paths against a fixed root
type Guard struct {
	root  string
	store ExistenceChecker
}

// New creates a guard for root. root is made absolute once here.
func New(root string, store ExistenceChecker) (*Guard, error) {
	if root == "" {
		return nil, errors.New("upload root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload root: %w", err)
	}
	return &Guard{root: abs, store: store}, nil
}

// One wraps a single path for Validate
func One(path string) []string {
	return []string{path}
}

// Root returns the absolute upload root
func (g *Guard) Root() string {
	return g.root
}

// Resolve joins path onto the root and cleans it lexically. The result is not
// guaranteed to be inside the root; use Contains or Validate for that.
func (g *Guard) Resolve(path string) string {
	return filepath.Join(g.root, path)
}

// Contains reports whether an absolute path lies strictly beneath the root.
// The root itself is not an upload.
func (g *Guard) Contains(abs string) bool {
	return strings.HasPrefix(abs, strings.TrimSuffix(g.root, string(os.PathSeparator))+string(os.PathSeparator))
}

// Validate checks that every path resolves beneath the root and names an
// existing file. Existence checks run concurrently; the first failure cancels
// the rest.
func (g *Guard) Validate(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return ErrWrongParameterType
	}

	resolved := make([]string, len(paths))
	for i, p := range paths {
		if p == "" {
			return ErrWrongParameterType
		}
		resolved[i] = g.Resolve(p)
		if !g.Contains(resolved[i]) {
			return ErrInvalidPath
		}
	}

	eg, egctx := errgroup.WithContext(ctx)
	for _, abs := range resolved {
		eg.Go(func() error {
			ok, err := g.store.Exists(egctx, abs)
			if err != nil {
				return fmt.Errorf("failed to check upload existence: %w", err)
			}
			if !ok {
				return ErrInvalidPath
			}
			return nil
		})
	}
	return eg.Wait()
}
