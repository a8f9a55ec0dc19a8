package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"
)

// DefaultPageSize is the number of summaries returned per listing page by
// backends that page themselves (local, SFTP). S3 uses its own limit.
const DefaultPageSize = 1000

// ErrNotFound is returned by Head and Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// ErrUnsafeKey is returned by directory-backed stores for keys that would
// resolve outside their root, such as "../x" or "/etc/passwd".
var ErrUnsafeKey = errors.New("key escapes store root")

// FileSummary is a read-only metadata snapshot of one key in one store.
type FileSummary struct {
	LastModified   *time.Time // nil when the backend cannot report it
	OngoingRestore *bool
	Key            string
	ETag           string
	StorageClass   string
	ArchiveStatus  string // empty unless the object sits in an archive tier
	Size           int64
}

// HasLastModified reports whether a last-modified timestamp is known.
func (s FileSummary) HasLastModified() bool {
	return s.LastModified != nil && !s.LastModified.IsZero()
}

// RestoreInProgress reports whether the backend says a restore is running.
func (s FileSummary) RestoreInProgress() bool {
	return s.OngoingRestore != nil && *s.OngoingRestore
}

// Page is one page of a listing. NextToken is empty on the last page.
type Page struct {
	NextToken string
	Summaries []FileSummary
}

// PutOptions controls how objects are written to the destination.
type PutOptions struct {
	StorageClass string
	SSE          string
	ACL          string
	ContentType  string
}

// Store is a flat key space addressed by (bucket-or-root, key).
type Store interface {
	// Bucket returns the bucket name or root directory of the store.
	Bucket() string

	// Head returns metadata for key, or ErrNotFound.
	Head(ctx context.Context, key string) (FileSummary, error)

	// Get opens key for reading. The caller must close the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, FileSummary, error)

	// Put writes size bytes from r to key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader, size int64, opts PutOptions) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns one page of keys under prefix, starting after token.
	List(ctx context.Context, prefix, token string) (Page, error)

	// Kind names the backend ("s3", "local", "sftp").
	Kind() string

	// Close releases resources held by the store.
	Close() error
}

// Copier is implemented by stores that can copy objects server-side from
// another bucket reachable through the same client.
type Copier interface {
	Copy(ctx context.Context, srcBucket, srcKey, dstKey string, opts PutOptions) error
}

// Restorer is implemented by stores with archive tiers. Restore only starts
// the asynchronous promotion; its progress shows up later in Head.
type Restorer interface {
	Restore(ctx context.Context, key string, days int32) error
}

// PermanentError marks a backend failure that retrying cannot fix, such as
// access denied or a missing bucket.
type PermanentError struct {
	Err error
	Op  string
	Key string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err (or anything it wraps) is a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// checkTreeKey rejects keys that cannot be stored below a directory root.
// Object stores accept any byte string as a key; a file tree does not.
func checkTreeKey(op, key string) error {
	if !filepath.IsLocal(filepath.FromSlash(key)) {
		return Permanent(op, key, ErrUnsafeKey)
	}
	return nil
}

// Permanent wraps err as a PermanentError for op on key.
func Permanent(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Op: op, Key: key, Err: err}
}
