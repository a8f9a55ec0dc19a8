package store

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLocalStore_HeadAndGet(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/b.txt", "hello")
	s := NewLocalStore(root)
	ctx := context.Background()

	summary, err := s.Head(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "a/b.txt", summary.Key)
	assert.Equal(t, int64(5), summary.Size)
	assert.True(t, summary.HasLastModified())

	rc, got, err := s.Get(ctx, "a/b.txt")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, int64(5), got.Size)
}

func TestLocalStore_HeadMissing(t *testing.T) {
	s := NewLocalStore(t.TempDir())

	_, err := s.Head(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_HeadDirectoryIsNotFound(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dir/file", "x")
	s := NewLocalStore(root)

	_, err := s.Head(context.Background(), "dir")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_PutCreatesParentsAndReplaces(t *testing.T) {
	root := t.TempDir()
	s := NewLocalStore(filepath.Join(root, "dst"))
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "x/y/z.bin", strings.NewReader("first"), 5, PutOptions{}))
	require.NoError(t, s.Put(ctx, "x/y/z.bin", strings.NewReader("second!"), 7, PutOptions{}))

	data, err := os.ReadFile(filepath.Join(root, "dst", "x", "y", "z.bin"))
	require.NoError(t, err)
	assert.Equal(t, "second!", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "dst", "x", "y"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestLocalStore_PutShortCopyFails(t *testing.T) {
	root := t.TempDir()
	s := NewLocalStore(root)

	err := s.Put(context.Background(), "k", bytes.NewReader([]byte("abc")), 10, PutOptions{})
	require.Error(t, err)

	_, err = os.Stat(filepath.Join(root, "k"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalStore_DeletePrunesEmptyDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "old/deep/file.txt", "x")
	writeFile(t, root, "keep.txt", "k")
	s := NewLocalStore(root)

	require.NoError(t, s.Delete(context.Background(), "old/deep/file.txt"))

	_, err := os.Stat(filepath.Join(root, "old"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(root)
	assert.NoError(t, err, "root must survive pruning")
}

func TestLocalStore_DeleteMissingIsNoop(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	assert.NoError(t, s.Delete(context.Background(), "ghost"))
}

func TestLocalStore_ListPages(t *testing.T) {
	root := t.TempDir()
	for _, k := range []string{"a.txt", "a/b", "b/c/d", "c", "e"} {
		writeFile(t, root, k, k)
	}
	writeFile(t, root, "b/.c.1234abcd"+tmpSuffix, "junk")
	s := NewLocalStore(root).WithPageSize(2)
	ctx := context.Background()

	var keys []string
	token := ""
	pages := 0
	for {
		page, err := s.List(ctx, "", token)
		require.NoError(t, err)
		pages++
		for _, sum := range page.Summaries {
			keys = append(keys, sum.Key)
		}
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}

	assert.Equal(t, []string{"a.txt", "a/b", "b/c/d", "c", "e"}, keys)
	assert.Equal(t, 3, pages)
}

func TestLocalStore_ListPrefix(t *testing.T) {
	root := t.TempDir()
	for _, k := range []string{"logs/1", "logs/2", "data/1"} {
		writeFile(t, root, k, k)
	}
	s := NewLocalStore(root)

	page, err := s.List(context.Background(), "logs/", "")
	require.NoError(t, err)
	require.Len(t, page.Summaries, 2)
	assert.Equal(t, "logs/1", page.Summaries[0].Key)
	assert.Empty(t, page.NextToken)
}

func TestLocalStore_ListMissingRoot(t *testing.T) {
	s := NewLocalStore(filepath.Join(t.TempDir(), "absent"))

	page, err := s.List(context.Background(), "", "")
	require.NoError(t, err)
	assert.Empty(t, page.Summaries)
	assert.Empty(t, page.NextToken)
}

func TestLocalStore_RejectsKeysOutsideRoot(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "root")
	s := NewLocalStore(root)
	ctx := context.Background()
	writeFile(t, base, "outside.txt", "keep")

	for _, key := range []string{"../escaped.txt", "a/../../escaped.txt", "/abs.txt", ""} {
		t.Run(key, func(t *testing.T) {
			err := s.Put(ctx, key, strings.NewReader("x"), 1, PutOptions{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsafeKey)
			assert.True(t, IsPermanent(err))
		})
	}
	_, err := os.Stat(filepath.Join(base, "escaped.txt"))
	assert.True(t, os.IsNotExist(err), "nothing written beside the root")

	_, err = s.Head(ctx, "../outside.txt")
	assert.ErrorIs(t, err, ErrUnsafeKey)
	_, _, err = s.Get(ctx, "../outside.txt")
	assert.ErrorIs(t, err, ErrUnsafeKey)
	assert.ErrorIs(t, s.Delete(ctx, "../outside.txt"), ErrUnsafeKey)
	data, err := os.ReadFile(filepath.Join(base, "outside.txt"))
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))

	require.NoError(t, s.Put(ctx, "a/../inside.txt", strings.NewReader("ok"), 2, PutOptions{}))
	_, err = os.Stat(filepath.Join(root, "inside.txt"))
	assert.NoError(t, err)
}
