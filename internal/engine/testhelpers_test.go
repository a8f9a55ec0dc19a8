package engine

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // etag emulation
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bamsammich/s3mirror/internal/stats"
	"github.com/bamsammich/s3mirror/internal/store"
)

// memBackend holds buckets reachable by one (fake) client, so server-side
// copies can read from a sibling store.
type memBackend struct {
	mu      sync.Mutex
	buckets map[string]*memStore
}

func newMemBackend() *memBackend {
	return &memBackend{buckets: make(map[string]*memStore)}
}

type memObject struct {
	summary store.FileSummary
	data    []byte
}

// memStore is an in-memory store.Store with fault injection hooks. Hooks
// receive the 1-based call number for that operation and key.
type memStore struct {
	backend  *memBackend
	kind     string
	bucket   string
	pageSize int

	mu       sync.Mutex
	objects  map[string]memObject
	calls    map[string]int
	restores []string

	headErr    func(key string, call int) error
	putErr     func(key string, call int) error
	copyErr    func(key string, call int) error
	deleteErr  func(key string, call int) error
	listErr    func(call int) error
	putDelay   time.Duration
	onRestored func(key string)
}

var (
	_ store.Store    = (*memStore)(nil)
	_ store.Copier   = (*memStore)(nil)
	_ store.Restorer = (*memStore)(nil)
)

func (b *memBackend) store(kind, bucket string) *memStore {
	s := &memStore{
		backend:  b,
		kind:     kind,
		bucket:   bucket,
		pageSize: 1000,
		objects:  make(map[string]memObject),
		calls:    make(map[string]int),
	}
	b.mu.Lock()
	b.buckets[bucket] = s
	b.mu.Unlock()
	return s
}

func etagOf(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec // etag emulation
	return hex.EncodeToString(sum[:])
}

// add stores an object directly, bypassing hooks and call counting.
func (s *memStore) add(key, content string, mtime time.Time) {
	s.addSummary(store.FileSummary{Key: key, LastModified: &mtime}, content)
}

func (s *memStore) addSummary(summary store.FileSummary, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary.Size = int64(len(content))
	if summary.ETag == "" {
		summary.ETag = etagOf([]byte(content))
	}
	s.objects[summary.Key] = memObject{summary: summary, data: []byte(content)}
}

func (s *memStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *memStore) content(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.objects[key].data)
}

func (s *memStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// count returns how often op was called for key ("" for list).
func (s *memStore) count(op, key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op+":"+key]
}

func (s *memStore) track(op, key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op+":"+key]++
	return s.calls[op+":"+key]
}

func (s *memStore) Bucket() string { return s.bucket }
func (s *memStore) Kind() string   { return s.kind }
func (*memStore) Close() error     { return nil }

func (s *memStore) Head(_ context.Context, key string) (store.FileSummary, error) {
	call := s.track("head", key)
	if s.headErr != nil {
		if err := s.headErr(key, call); err != nil {
			return store.FileSummary{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return store.FileSummary{}, store.ErrNotFound
	}
	return obj.summary, nil
}

func (s *memStore) Get(_ context.Context, key string) (io.ReadCloser, store.FileSummary, error) {
	s.track("get", key)
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, store.FileSummary{}, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.summary, nil
}

func (s *memStore) Put(_ context.Context, key string, r io.Reader, size int64, opts store.PutOptions) error {
	call := s.track("put", key)
	if s.putDelay > 0 {
		time.Sleep(s.putDelay)
	}
	if s.putErr != nil {
		if err := s.putErr(key, call); err != nil {
			return err
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("short write: %d of %d", len(data), size)
	}
	now := time.Now()
	s.addSummary(store.FileSummary{Key: key, LastModified: &now, StorageClass: opts.StorageClass}, string(data))
	return nil
}

func (s *memStore) Copy(_ context.Context, srcBucket, srcKey, dstKey string, _ store.PutOptions) error {
	call := s.track("copy", dstKey)
	if s.copyErr != nil {
		if err := s.copyErr(dstKey, call); err != nil {
			return err
		}
	}
	s.backend.mu.Lock()
	src := s.backend.buckets[srcBucket]
	s.backend.mu.Unlock()
	if src == nil {
		return store.Permanent("copy", srcKey, fmt.Errorf("no such bucket %s", srcBucket))
	}
	src.mu.Lock()
	obj, ok := src.objects[srcKey]
	src.mu.Unlock()
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	s.addSummary(store.FileSummary{Key: dstKey, LastModified: &now, ETag: obj.summary.ETag}, string(obj.data))
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	call := s.track("delete", key)
	if s.deleteErr != nil {
		if err := s.deleteErr(key, call); err != nil {
			return err
		}
	}
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *memStore) Restore(_ context.Context, key string, _ int32) error {
	s.track("restore", key)
	s.mu.Lock()
	s.restores = append(s.restores, key)
	s.mu.Unlock()
	if s.onRestored != nil {
		s.onRestored(key)
	}
	return nil
}

func (s *memStore) List(_ context.Context, prefix, token string) (store.Page, error) {
	call := s.track("list", "")
	if s.listErr != nil {
		if err := s.listErr(call); err != nil {
			return store.Page{}, err
		}
	}

	var keys []string
	for _, k := range s.keys() {
		if strings.HasPrefix(k, prefix) && k > token {
			keys = append(keys, k)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	page := store.Page{}
	for i, k := range keys {
		if i == s.pageSize {
			page.NextToken = keys[i-1]
			break
		}
		page.Summaries = append(page.Summaries, s.objects[k].summary)
	}
	return page, nil
}

// newTestMirror wires a mirror between two fresh stores of the given kinds.
func newTestMirror(t *testing.T, srcKind, dstKind string, opts Options) (*Mirror, *memStore, *memStore) {
	t.Helper()
	b := newMemBackend()
	src := b.store(srcKind, "src-bucket")
	dst := b.store(dstKind, "dst-bucket")
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = time.Millisecond
	}
	return New(opts, src, dst, stats.New(true)), src, dst
}

// runJob runs j directly and returns how many times it signaled completion.
func runJob(ctx context.Context, j Job) int {
	var mu sync.Mutex
	signals := 0
	j.base().onDone(func() {
		mu.Lock()
		signals++
		mu.Unlock()
	})
	j.Run(ctx)
	mu.Lock()
	defer mu.Unlock()
	return signals
}

var errTransient = fmt.Errorf("connection reset by peer")

func requireCounter(t *testing.T, m *Mirror, c stats.Counter, want int64) {
	t.Helper()
	require.Equal(t, want, m.stats.Get(c), "counter %s", c)
}
