package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const tmpSuffix = ".s3mirror-tmp"

var _ Store = (*LocalStore)(nil)

// LocalStore maps keys onto files below a root directory. Keys always use
// forward slashes regardless of platform.
type LocalStore struct {
	pager *keyPager
	root  string
}

// NewLocalStore creates a store rooted at root. The directory is created
// lazily on the first Put.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root, pager: newKeyPager(DefaultPageSize)}
}

// WithPageSize overrides the number of keys returned per List call.
func (s *LocalStore) WithPageSize(n int) *LocalStore {
	s.pager.setPageSize(n)
	return s
}

func (s *LocalStore) Bucket() string { return s.root }
func (*LocalStore) Kind() string     { return "local" }
func (*LocalStore) Close() error     { return nil }

// path returns the filesystem path for key, refusing keys that leave the root.
func (s *LocalStore) path(op, key string) (string, error) {
	if err := checkTreeKey(op, key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func (s *LocalStore) Head(_ context.Context, key string) (FileSummary, error) {
	p, err := s.path("head", key)
	if err != nil {
		return FileSummary{}, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return FileSummary{}, classifyLocal("head", key, err)
	}
	if info.IsDir() {
		return FileSummary{}, ErrNotFound
	}
	return localSummary(key, info), nil
}

func (s *LocalStore) Get(_ context.Context, key string) (io.ReadCloser, FileSummary, error) {
	p, err := s.path("get", key)
	if err != nil {
		return nil, FileSummary{}, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, FileSummary{}, classifyLocal("get", key, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, FileSummary{}, fmt.Errorf("stat %s: %w", key, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, FileSummary{}, ErrNotFound
	}
	return f, localSummary(key, info), nil
}

func (s *LocalStore) Put(_ context.Context, key string, r io.Reader, size int64, _ PutOptions) error {
	dst, err := s.path("put", key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return classifyLocal("mkdir", key, err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s%s", filepath.Base(dst), uuid.New().String()[:8], tmpSuffix))
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return classifyLocal("create", key, err)
	}
	defer os.Remove(tmpPath) // no-op once renamed

	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if size >= 0 && n != size {
		f.Close()
		return fmt.Errorf("write %s: short copy (%d of %d bytes)", key, n, size)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return classifyLocal("rename", key, err)
	}
	return nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	path, err := s.path("delete", key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return classifyLocal("delete", key, err)
	}
	s.pruneEmptyParents(filepath.Dir(path))
	return nil
}

// pruneEmptyParents removes now-empty directories between dir and the root.
func (s *LocalStore) pruneEmptyParents(dir string) {
	root := filepath.Clean(s.root)
	for dir = filepath.Clean(dir); dir != root && strings.HasPrefix(dir, root); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			return // not empty, or gone
		}
	}
}

func (s *LocalStore) List(_ context.Context, prefix, token string) (Page, error) {
	keys, next, err := s.pager.page(prefix, token, s.walk)
	if err != nil {
		return Page{}, err
	}

	page := Page{NextToken: next, Summaries: make([]FileSummary, 0, len(keys))}
	for _, key := range keys {
		p, err := s.path("list", key)
		if err != nil {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			continue // removed since the walk
		}
		page.Summaries = append(page.Summaries, localSummary(key, info))
	}
	return page, nil
}

func (s *LocalStore) walk() ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return nil // skip inaccessible entries
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), tmpSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, err)
	}
	return keys, nil
}

func localSummary(key string, info fs.FileInfo) FileSummary {
	mtime := info.ModTime()
	return FileSummary{
		Key:          key,
		Size:         info.Size(),
		LastModified: &mtime,
	}
}

func classifyLocal(op, key string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return Permanent(op, key, err)
	default:
		return fmt.Errorf("%s %s: %w", op, key, err)
	}
}
