package uploads

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/maneesh/labuploads/internal/index"
	"github.com/maneesh/labuploads/internal/models"
)

type memIndex struct {
	mu       sync.Mutex
	sets     map[string][]string // user key -> members in insertion order
	owners   map[string]string   // path -> owner uid
	refs     map[string][]string // path -> pids
	ranges   [][2]int64
	refsErr  error
	rmErr    error
	countErr error
	refCall  [][]string
}

func newMemIndex() *memIndex {
	return &memIndex{
		sets:   map[string][]string{},
		owners: map[string]string{},
		refs:   map[string][]string{},
	}
}

func (m *memIndex) Associate(_ context.Context, uid, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := index.UserKey(uid)
	if !slices.Contains(m.sets[key], path) {
		m.sets[key] = append(m.sets[key], path)
	}
	m.owners[path] = uid
	return nil
}

func (m *memIndex) IsOwnedBy(_ context.Context, uid string, paths []string) ([]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]bool, len(paths))
	for i, p := range paths {
		out[i] = slices.Contains(m.sets[index.UserKey(uid)], p)
	}
	return out, nil
}

func (m *memIndex) Remove(_ context.Context, uid, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rmErr != nil {
		return m.rmErr
	}
	key := index.UserKey(uid)
	m.sets[key] = slices.DeleteFunc(m.sets[key], func(s string) bool { return s == path })
	delete(m.owners, path)
	return nil
}

func (m *memIndex) ReferencingPosts(_ context.Context, paths []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refCall = append(m.refCall, slices.Clone(paths))
	if m.refsErr != nil {
		return nil, m.refsErr
	}
	seen := map[string]bool{}
	var out []string
	for _, p := range paths {
		for _, pid := range m.refs[p] {
			if !seen[pid] {
				seen[pid] = true
				out = append(out, pid)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memIndex) Range(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ranges = append(m.ranges, [2]int64{start, stop})
	members := m.sets[key]
	n := int64(len(members))
	if start >= n {
		return nil, nil
	}
	return slices.Clone(members[start:min(stop+1, n)]), nil
}

func (m *memIndex) Record(_ context.Context, path string) (*models.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	uid, ok := m.owners[path]
	if !ok {
		return nil, nil
	}
	return &models.Upload{Path: path, ContentKey: index.ContentKey(path), Owner: uid}, nil
}

func (m *memIndex) Count(_ context.Context, uid string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	return int64(len(m.sets[index.UserKey(uid)])), nil
}

func (m *memIndex) owned(uid, path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Contains(m.sets[index.UserKey(uid)], path)
}

func (m *memIndex) owner(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	uid, ok := m.owners[path]
	return uid, ok
}

type memFiles struct {
	mu      sync.Mutex
	files   map[string]bool
	deleted []string
	delErr  map[string]error
}

func newMemFiles() *memFiles {
	return &memFiles{files: map[string]bool{}, delErr: map[string]error{}}
}

func (f *memFiles) Exists(_ context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[path], nil
}

func (f *memFiles) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, path)
	if err := f.delErr[path]; err != nil {
		return err
	}
	delete(f.files, path)
	return nil
}

func (f *memFiles) has(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[path]
}

type memPrivileges map[string]bool

func (p memPrivileges) IsPrivileged(_ context.Context, uid string) (bool, error) {
	return p[uid], nil
}

type dissociation struct {
	pid, path string
}

type memPosts struct {
	mu    sync.Mutex
	calls []dissociation
	fail  func(pid, path string) error
}

func (p *memPosts) Dissociate(_ context.Context, pid, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, dissociation{pid, path})
	if p.fail != nil {
		return p.fail(pid, path)
	}
	return nil
}

func (p *memPosts) sorted() []dissociation {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := slices.Clone(p.calls)
	sort.Slice(out, func(i, j int) bool {
		if out[i].pid != out[j].pid {
			return out[i].pid < out[j].pid
		}
		return out[i].path < out[j].path
	})
	return out
}

type archiveEntry struct {
	path, name string
}

type memArchive struct {
	entries []archiveEntry
	err     error
}

func (a *memArchive) AddFile(_ context.Context, path, name string) error {
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, archiveEntry{path: path, name: name})
	return nil
}
