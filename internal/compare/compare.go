// Package compare decides whether a destination key is stale relative to
// its source counterpart.
package compare

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/bamsammich/s3mirror/internal/store"
)

// Strategy answers "does dst need to be updated from src?". Implementations
// hold no mutable state and are safe for concurrent use.
type Strategy interface {
	SourceDifferent(src, dst store.FileSummary) bool
	Name() string
}

// Strategy names accepted by Parse.
const (
	NameSize      = "size"
	NameSizeMTime = "size-mtime"
	NameETag      = "etag"
)

// Names lists the accepted strategy names, default first.
var Names = []string{NameETag, NameSizeMTime, NameSize}

// Parse returns the strategy registered under name. An empty name selects
// the default (etag).
//
//nolint:ireturn // factory returns interface by design
func Parse(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameETag:
		return ETag{}, nil
	case NameSizeMTime, "size-and-last-modified":
		return SizeAndLastModified{}, nil
	case NameSize, "size-only":
		return SizeOnly{}, nil
	default:
		return nil, fmt.Errorf("unknown compare strategy %q (want one of %s)", name, strings.Join(Names, ", "))
	}
}

// SizeOnly treats two keys as different iff their sizes differ.
type SizeOnly struct{}

func (SizeOnly) Name() string { return NameSize }

func (SizeOnly) SourceDifferent(src, dst store.FileSummary) bool {
	return src.Size != dst.Size
}

// SizeAndLastModified extends SizeOnly: equal-sized keys are different when
// either timestamp is unknown, or when the source is strictly newer.
type SizeAndLastModified struct {
	SizeOnly
}

func (SizeAndLastModified) Name() string { return NameSizeMTime }

func (s SizeAndLastModified) SourceDifferent(src, dst store.FileSummary) bool {
	if s.SizeOnly.SourceDifferent(src, dst) {
		slog.Debug("size differs, requesting sync", "key", src.Key,
			"src_size", src.Size, "dst_size", dst.Size)
		return true
	}

	if !src.HasLastModified() || !dst.HasLastModified() {
		slog.Warn("last-modified unavailable, requesting sync", "key", src.Key)
		return true
	}

	if src.LastModified.After(*dst.LastModified) {
		slog.Debug("source is newer, requesting sync", "key", src.Key,
			"src_mtime", *src.LastModified, "dst_mtime", *dst.LastModified)
		return true
	}
	return false
}

// ETag compares sizes and then entity tags when both sides report one.
// Without a pair of tags (local files, SFTP) it behaves like
// SizeAndLastModified.
type ETag struct {
	fallback SizeAndLastModified
}

func (ETag) Name() string { return NameETag }

func (e ETag) SourceDifferent(src, dst store.FileSummary) bool {
	if src.ETag == "" || dst.ETag == "" {
		return e.fallback.SourceDifferent(src, dst)
	}
	if src.Size != dst.Size {
		slog.Debug("size differs, requesting sync", "key", src.Key,
			"src_size", src.Size, "dst_size", dst.Size)
		return true
	}
	if src.ETag != dst.ETag {
		slog.Debug("etag differs, requesting sync", "key", src.Key,
			"src_etag", src.ETag, "dst_etag", dst.ETag)
		return true
	}
	return false
}
