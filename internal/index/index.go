// Package index keeps per-user upload ownership and per-upload records in Redis.
//
// Key layout:
//
//	uid:<uid>:uploads        sorted set of relative paths scored by association time (ms)
//	upload:<md5(path)>       hash with field "owner"
//	upload:<md5(path)>:pids  set of post ids embedding the upload
package index

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/maneesh/labuploads/internal/models"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("labuploads-index")

const ownerField = "owner"

// Index is the Redis-backed upload index. It is safe for concurrent use.
type Index struct {
	rdb redis.Cmdable
	now func() time.Time
}

// Option configures an Index
type Option func(*Index)

// WithClock overrides the time source used for association scores
func WithClock(now func() time.Time) Option {
	return func(ix *Index) {
		ix.now = now
	}
}

// New creates an index on top of any go-redis client
func New(rdb redis.Cmdable, opts ...Option) *Index {
	ix := &Index{rdb: rdb, now: time.Now}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// ContentKey is the hex MD5 of a relative upload path
func ContentKey(path string) string {
	sum := md5.Sum([]byte(path))
	return hex.EncodeToString(sum[:])
}

// UserKey is the ownership index key of uid
func UserKey(uid string) string {
	return fmt.Sprintf("uid:%s:uploads", uid)
}

func recordKey(path string) string {
	return "upload:" + ContentKey(path)
}

func referencesKey(path string) string {
	return recordKey(path) + ":pids"
}

// Associate records uid as the owner of path. The index entry and the
// metadata record are written in one MULTI/EXEC round trip.
func (ix *Index) Associate(ctx context.Context, uid, path string) error {
	ctx, span := tracer.Start(ctx, "index.associate",
		trace.WithAttributes(
			attribute.String("uid", uid),
			attribute.String("path", path),
		),
	)
	defer span.End()

	score := float64(ix.now().UnixMilli())
	_, err := ix.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, UserKey(uid), redis.Z{Score: score, Member: path})
		pipe.HSet(ctx, recordKey(path), ownerField, uid)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to associate upload: %w", err)
	}
	return nil
}

// IsOwnedBy reports, per path, whether it is in uid's ownership index
func (ix *Index) IsOwnedBy(ctx context.Context, uid string, paths []string) ([]bool, error) {
	ctx, span := tracer.Start(ctx, "index.is_owned_by",
		trace.WithAttributes(
			attribute.String("uid", uid),
			attribute.Int("path_count", len(paths)),
		),
	)
	defer span.End()

	if len(paths) == 0 {
		return nil, nil
	}

	key := UserKey(uid)
	cmds := make([]*redis.FloatCmd, len(paths))
	_, err := ix.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, p := range paths {
			cmds[i] = pipe.ZScore(ctx, key, p)
		}
		return nil
	})
	// redis.Nil from any ZSCORE only means "not a member"
	if err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to check upload ownership: %w", err)
	}

	owned := make([]bool, len(paths))
	for i, cmd := range cmds {
		switch err := cmd.Err(); {
		case err == nil:
			owned[i] = true
		case errors.Is(err, redis.Nil):
		default:
			span.RecordError(err)
			return nil, fmt.Errorf("failed to check upload ownership: %w", err)
		}
	}
	return owned, nil
}

// Remove drops path from uid's index and deletes its metadata record.
// Removing an unknown path is a no-op.
func (ix *Index) Remove(ctx context.Context, uid, path string) error {
	ctx, span := tracer.Start(ctx, "index.remove",
		trace.WithAttributes(
			attribute.String("uid", uid),
			attribute.String("path", path),
		),
	)
	defer span.End()

	_, err := ix.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, UserKey(uid), path)
		pipe.Del(ctx, recordKey(path))
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to remove upload: %w", err)
	}
	return nil
}

// ReferencingPosts returns the union of post ids embedding any of paths, sorted
func (ix *Index) ReferencingPosts(ctx context.Context, paths []string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "index.referencing_posts",
		trace.WithAttributes(attribute.Int("path_count", len(paths))),
	)
	defer span.End()

	if len(paths) == 0 {
		return nil, nil
	}

	keys := make([]string, len(paths))
	for i, p := range paths {
		keys[i] = referencesKey(p)
	}

	pids, err := ix.rdb.SUnion(ctx, keys...).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read upload references: %w", err)
	}
	sort.Strings(pids)

	span.SetAttributes(attribute.Int("pid_count", len(pids)))
	return pids, nil
}

// AddReference records that post pid embeds path
func (ix *Index) AddReference(ctx context.Context, path, pid string) error {
	if err := ix.rdb.SAdd(ctx, referencesKey(path), pid).Err(); err != nil {
		return fmt.Errorf("failed to add upload reference: %w", err)
	}
	return nil
}

// RemoveReference forgets that post pid embeds path
func (ix *Index) RemoveReference(ctx context.Context, path, pid string) error {
	if err := ix.rdb.SRem(ctx, referencesKey(path), pid).Err(); err != nil {
		return fmt.Errorf("failed to remove upload reference: %w", err)
	}
	return nil
}

// Owner returns the recorded owner of path, or "" when there is no record
func (ix *Index) Owner(ctx context.Context, path string) (string, error) {
	uid, err := ix.rdb.HGet(ctx, recordKey(path), ownerField).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("failed to read upload owner: %w", err)
	}
	return uid, nil
}

// Record returns the ownership record of path, or nil when nothing owns it
func (ix *Index) Record(ctx context.Context, path string) (*models.Upload, error) {
	ctx, span := tracer.Start(ctx, "index.record",
		trace.WithAttributes(attribute.String("path", path)),
	)
	defer span.End()

	owner, err := ix.Owner(ctx, path)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if owner == "" {
		return nil, nil
	}

	rec := &models.Upload{
		Path:       path,
		ContentKey: ContentKey(path),
		Owner:      owner,
	}
	score, err := ix.rdb.ZScore(ctx, UserKey(owner), path).Result()
	switch {
	case err == nil:
		rec.AddedAt = time.UnixMilli(int64(score)).UTC()
	case errors.Is(err, redis.Nil):
		// metadata without an index entry; the time is unknown
	default:
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read upload score: %w", err)
	}
	return rec, nil
}

// Count returns the number of uploads in uid's index
func (ix *Index) Count(ctx context.Context, uid string) (int64, error) {
	n, err := ix.rdb.ZCard(ctx, UserKey(uid)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count uploads: %w", err)
	}
	return n, nil
}

// Range returns members of the sorted set at key between start and stop
// inclusive, in score order.
func (ix *Index) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	ctx, span := tracer.Start(ctx, "index.range",
		trace.WithAttributes(
			attribute.String("key", key),
			attribute.Int64("start", start),
			attribute.Int64("stop", stop),
		),
	)
	defer span.End()

	members, err := ix.rdb.ZRange(ctx, key, start, stop).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to range uploads: %w", err)
	}
	return members, nil
}
