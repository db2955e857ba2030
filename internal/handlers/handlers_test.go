package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/maneesh/labuploads/internal/models"
	"github.com/maneesh/labuploads/internal/storage"
	"github.com/maneesh/labuploads/internal/uploads"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLifecycle struct {
	associated [][2]string
	deleted    []deleteCall
	collate    func(ctx context.Context, uid string, a uploads.Archive) error
	err        error
}

type deleteCall struct {
	caller, owner string
	names         []string
}

func (s *stubLifecycle) Associate(_ context.Context, uid, path string) error {
	s.associated = append(s.associated, [2]string{uid, path})
	return s.err
}

func (s *stubLifecycle) Delete(_ context.Context, caller, owner string, names []string) error {
	s.deleted = append(s.deleted, deleteCall{caller, owner, names})
	return s.err
}

func (s *stubLifecycle) Collate(ctx context.Context, uid string, a uploads.Archive) error {
	if s.collate != nil {
		return s.collate(ctx, uid, a)
	}
	return s.err
}

func (s *stubLifecycle) Lookup(_ context.Context, caller, path string) (*models.Upload, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Upload{Path: path, Owner: caller, AddedAt: time.UnixMilli(1_700_000_000_000).UTC()}, nil
}

type stubPrivileges map[string]bool

func (p stubPrivileges) IsPrivileged(_ context.Context, uid string) (bool, error) {
	return p[uid], nil
}

func newTestRouter(svc *stubLifecycle) http.Handler {
	return NewRouter(svc, stubPrivileges{"2": true}, storage.NewLocalStore(), zerolog.Nop(), nil)
}

func do(t *testing.T, h http.Handler, method, target, uid string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if uid != "" {
		req.Header.Set(UserHeader, uid)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestRouter(&stubLifecycle{}), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestAssociate(t *testing.T) {
	svc := &stubLifecycle{}
	rec := do(t, newTestRouter(svc), http.MethodPut, "/uploads?path=a/b.png", "1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, [][2]string{{"1", "a/b.png"}}, svc.associated)
}

func TestAssociateRequiresCaller(t *testing.T) {
	svc := &stubLifecycle{}
	rec := do(t, newTestRouter(svc), http.MethodPut, "/uploads?path=a/b.png", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, svc.associated)
}

func TestLookupReturnsRecord(t *testing.T) {
	rec := do(t, newTestRouter(&stubLifecycle{}), http.MethodGet, "/uploads?path=a/b.png", "1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Upload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "a/b.png", got.Path)
	assert.Equal(t, "1", got.Owner)
}

func TestLookupOfUnassociatedUpload(t *testing.T) {
	rec := do(t, newTestRouter(&stubLifecycle{err: uploads.ErrNotAssociated}), http.MethodGet, "/uploads?path=a/b.png", "2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{uploads.ErrInvalidPath, http.StatusBadRequest},
		{uploads.ErrWrongParameterType, http.StatusBadRequest},
		{uploads.ErrNoPrivileges, http.StatusForbidden},
		{&uploads.OpError{Op: "index.remove", Path: "a/b.png", Err: errors.New("redis down")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		svc := &stubLifecycle{err: tt.err}
		rec := do(t, newTestRouter(svc), http.MethodDelete, "/uploads", "3",
			strings.NewReader(`{"owner_uid":"1","name":"a/b.png"}`))
		assert.Equal(t, tt.status, rec.Code, tt.err.Error())

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.RequestID)
		assert.NotContains(t, resp.Error, "redis down")
	}
}

func TestDeleteAcceptsSingleAndMany(t *testing.T) {
	svc := &stubLifecycle{}
	h := newTestRouter(svc)

	rec := do(t, h, http.MethodDelete, "/uploads", "1", strings.NewReader(`{"name":"a/b.png"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodDelete, "/uploads", "2", strings.NewReader(`{"owner_uid":"1","names":["a.png","b.png"]}`))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []deleteCall{
		{"1", "1", []string{"a/b.png"}},
		{"2", "1", []string{"a.png", "b.png"}},
	}, svc.deleted)
}

func TestDeleteRejectsBadBody(t *testing.T) {
	svc := &stubLifecycle{}
	rec := do(t, newTestRouter(svc), http.MethodDelete, "/uploads", "1", strings.NewReader(`{"names":`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.deleted)
}

func TestExportStreamsZip(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "b.png")
	require.NoError(t, os.WriteFile(file, []byte("png"), 0o644))

	svc := &stubLifecycle{
		collate: func(ctx context.Context, uid string, a uploads.Archive) error {
			return a.AddFile(ctx, file, "b.png")
		},
	}
	rec := do(t, newTestRouter(svc), http.MethodGet, "/users/1/uploads.zip", "1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))

	body := rec.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "b.png", zr.File[0].Name)
}

func TestExportOfOtherUserNeedsPrivileges(t *testing.T) {
	called := false
	svc := &stubLifecycle{
		collate: func(context.Context, string, uploads.Archive) error {
			called = true
			return nil
		},
	}
	h := newTestRouter(svc)

	rec := do(t, h, http.MethodGet, "/users/1/uploads.zip", "3", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, called)

	rec = do(t, h, http.MethodGet, "/users/1/uploads.zip", "2", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}
