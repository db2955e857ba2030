package posts

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/maneesh/labuploads/internal/index"
	"github.com/maneesh/labuploads/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	insertQuery = regexp.QuoteMeta(`INSERT IGNORE INTO post_uploads (pid, path) VALUES (?, ?)`)
	deleteQuery = regexp.QuoteMeta(`DELETE FROM post_uploads WHERE pid = ? AND path = ?`)
)

func newReferences(t *testing.T) (*References, *index.Index, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ix := index.New(rdb)
	return NewReferences(storage.NewTiDBClientFromDB(db), ix), ix, mock
}

func TestAssociateAndDissociate(t *testing.T) {
	refs, ix, mock := newReferences(t)
	ctx := context.Background()

	mock.ExpectExec(insertQuery).WithArgs("10", "a/b.png").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(insertQuery).WithArgs("11", "a/b.png").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectExec(deleteQuery).WithArgs("10", "a/b.png").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(deleteQuery).WithArgs("10", "a/b.png").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, refs.Associate(ctx, "10", "a/b.png"))
	require.NoError(t, refs.Associate(ctx, "11", "a/b.png"))

	pids, err := ix.ReferencingPosts(ctx, []string{"a/b.png"})
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "11"}, pids)

	require.NoError(t, refs.Dissociate(ctx, "10", "a/b.png"))
	// idempotent
	require.NoError(t, refs.Dissociate(ctx, "10", "a/b.png"))

	pids, err = ix.ReferencingPosts(ctx, []string{"a/b.png"})
	require.NoError(t, err)
	assert.Equal(t, []string{"11"}, pids)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDissociateStopsOnTableError(t *testing.T) {
	refs, ix, mock := newReferences(t)
	ctx := context.Background()
	require.NoError(t, ix.AddReference(ctx, "a/b.png", "10"))

	boom := errors.New("tidb unavailable")
	mock.ExpectExec(deleteQuery).WithArgs("10", "a/b.png").WillReturnError(boom)

	err := refs.Dissociate(ctx, "10", "a/b.png")
	assert.ErrorIs(t, err, boom)

	// the reference set is left alone so a retry still finds the post
	pids, err := ix.ReferencingPosts(ctx, []string{"a/b.png"})
	require.NoError(t, err)
	assert.Equal(t, []string{"10"}, pids)
}
