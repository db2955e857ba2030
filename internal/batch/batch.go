// Package batch runs work over large collections in bounded chunks.
//
// Chunks are processed strictly one after another; all concurrency lives
// inside a single chunk, so the chunk size bounds in-flight work and memory.
// The first error stops processing. Work already done for earlier chunks is
// not undone.
package batch

import (
	"context"
	"iter"
)

// Defaults used by the upload lifecycle.
const (
	DefaultArraySize     = 50
	DefaultSortedSetSize = 100
)

// PageSource reads a window [start, stop] of a server-side ordered set
type PageSource interface {
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)
}

// ProcessArray calls fn with consecutive chunks of at most size items.
// fn must finish all of its own concurrent work before returning.
func ProcessArray[T any](ctx context.Context, items []T, size int, fn func(ctx context.Context, chunk []T) error) error {
	if size <= 0 {
		size = DefaultArraySize
	}

	for start := 0; start < len(items); start += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+size, len(items))
		if err := fn(ctx, items[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// Pages lazily pages through the ordered set at key. The next page is only
// requested once the loop body for the current page has returned. Iteration
// ends after a short page or on the first error, which is yielded once.
func Pages(ctx context.Context, src PageSource, key string, size int) iter.Seq2[[]string, error] {
	if size <= 0 {
		size = DefaultSortedSetSize
	}

	return func(yield func([]string, error) bool) {
		for start := int64(0); ; start += int64(size) {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			page, err := src.Range(ctx, key, start, start+int64(size)-1)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(page) == 0 {
				return
			}
			if !yield(page, nil) {
				return
			}
			if len(page) < size {
				return
			}
		}
	}
}

// ProcessSortedSet calls fn for each page of the ordered set at key
func ProcessSortedSet(ctx context.Context, src PageSource, key string, size int, fn func(ctx context.Context, page []string) error) error {
	for page, err := range Pages(ctx, src, key, size) {
		if err != nil {
			return err
		}
		if err := fn(ctx, page); err != nil {
			return err
		}
	}
	return nil
}
