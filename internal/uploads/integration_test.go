package uploads_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/klauspost/compress/zip"
	"github.com/maneesh/labuploads/internal/archive"
	"github.com/maneesh/labuploads/internal/index"
	"github.com/maneesh/labuploads/internal/storage"
	"github.com/maneesh/labuploads/internal/uploads"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticPrivileges map[string]bool

func (p staticPrivileges) IsPrivileged(_ context.Context, uid string) (bool, error) {
	return p[uid], nil
}

// postLinks dissociates through the index reference sets only
type postLinks struct {
	ix    *index.Index
	mu    sync.Mutex
	calls []string
}

func (p *postLinks) Dissociate(ctx context.Context, pid, path string) error {
	p.mu.Lock()
	p.calls = append(p.calls, pid+" "+path)
	p.mu.Unlock()
	return p.ix.RemoveReference(ctx, path, pid)
}

type stack struct {
	root  string
	svc   *uploads.Service
	ix    *index.Index
	posts *postLinks
}

func newStack(t *testing.T) *stack {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	root := t.TempDir()
	ix := index.New(rdb)
	posts := &postLinks{ix: ix}
	svc, err := uploads.NewService(root, ix, storage.NewLocalStore(), staticPrivileges{"2": true}, posts)
	require.NoError(t, err)
	return &stack{root: root, svc: svc, ix: ix, posts: posts}
}

func (s *stack) write(t *testing.T, rel string) {
	t.Helper()
	abs := filepath.Join(s.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(rel), 0o644))
}

func TestAliceAdminBobScenario(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	s.write(t, "a/b.png")
	s.write(t, "a/b-resized.png")
	require.NoError(t, s.svc.Associate(ctx, "1", "a/b.png"))
	require.NoError(t, s.ix.AddReference(ctx, "a/b.png", "42"))

	rec, err := s.svc.Lookup(ctx, "1", "a/b.png")
	require.NoError(t, err)
	assert.Equal(t, index.ContentKey("a/b.png"), rec.ContentKey)
	assert.False(t, rec.AddedAt.IsZero())

	// directories under the root are never uploads
	require.NoError(t, os.MkdirAll(filepath.Join(s.root, "album"), 0o755))
	assert.ErrorIs(t, s.svc.Associate(ctx, "1", "album"), uploads.ErrInvalidPath)
	assert.ErrorIs(t, s.svc.Associate(ctx, "1", "."), uploads.ErrInvalidPath)

	// bob is neither the owner nor privileged
	err = s.svc.DeleteOne(ctx, "3", "1", "a/b.png")
	require.ErrorIs(t, err, uploads.ErrNoPrivileges)
	owner, err := s.ix.Owner(ctx, "a/b.png")
	require.NoError(t, err)
	assert.Equal(t, "1", owner)
	assert.FileExists(t, filepath.Join(s.root, "a/b.png"))

	// the admin may delete alice's upload
	require.NoError(t, s.svc.DeleteOne(ctx, "2", "1", "a/b.png"))

	owned, err := s.ix.IsOwnedBy(ctx, "1", []string{"a/b.png"})
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, owned)
	owner, err = s.ix.Owner(ctx, "a/b.png")
	require.NoError(t, err)
	assert.Empty(t, owner)
	assert.NoFileExists(t, filepath.Join(s.root, "a/b.png"))
	assert.NoFileExists(t, filepath.Join(s.root, "a/b-resized.png"))
	assert.Equal(t, []string{"42 a/b.png"}, s.posts.calls)

	pids, err := s.ix.ReferencingPosts(ctx, []string{"a/b.png"})
	require.NoError(t, err)
	assert.Empty(t, pids)
}

func TestCollateIntoZip(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	var want []string
	for i := 0; i < 150; i++ {
		rel := fmt.Sprintf("files/%d/%03d.png", i%3, i)
		s.write(t, rel)
		require.NoError(t, s.svc.Associate(ctx, "1", rel))
		want = append(want, fmt.Sprintf("%03d.png", i))
	}

	var buf bytes.Buffer
	z := archive.NewZip(&buf, storage.NewLocalStore())
	require.NoError(t, s.svc.Collate(ctx, "1", z))
	require.NoError(t, z.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	var got []string
	for _, f := range zr.File {
		got = append(got, f.Name)
	}
	sort.Strings(got)
	assert.Equal(t, want, got)
}
