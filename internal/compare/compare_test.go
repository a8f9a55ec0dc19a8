package compare

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/s3mirror/internal/store"
)

func summary(size int64, mtime *time.Time) store.FileSummary {
	return store.FileSummary{Key: "k", Size: size, LastModified: mtime}
}

func at(sec int64) *time.Time {
	t := time.Unix(sec, 0)
	return &t
}

func TestSizeOnly(t *testing.T) {
	s := SizeOnly{}
	tests := []struct {
		name     string
		src, dst store.FileSummary
		want     bool
	}{
		{"equal size, same time", summary(10, at(100)), summary(10, at(100)), false},
		{"equal size, newer source", summary(10, at(200)), summary(10, at(100)), false},
		{"equal size, no timestamps", summary(10, nil), summary(10, nil), false},
		{"bigger source", summary(11, at(100)), summary(10, at(100)), true},
		{"smaller source", summary(0, nil), summary(10, nil), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.SourceDifferent(tt.src, tt.dst))
		})
	}
}

func TestSizeAndLastModified(t *testing.T) {
	s := SizeAndLastModified{}
	tests := []struct {
		name     string
		src, dst store.FileSummary
		want     bool
	}{
		{"sizes differ", summary(1, at(100)), summary(2, at(100)), true},
		{"sizes differ, dst newer", summary(1, at(100)), summary(2, at(500)), true},
		{"missing source time", summary(5, nil), summary(5, at(100)), true},
		{"missing dest time", summary(5, at(100)), summary(5, nil), true},
		{"both missing", summary(5, nil), summary(5, nil), true},
		{"zero time counts as missing", summary(5, &time.Time{}), summary(5, at(100)), true},
		{"source strictly newer", summary(5, at(101)), summary(5, at(100)), true},
		{"same instant", summary(5, at(100)), summary(5, at(100)), false},
		{"source older", summary(5, at(99)), summary(5, at(100)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.SourceDifferent(tt.src, tt.dst))
		})
	}
}

func TestSizeDifferenceAlwaysDifferent(t *testing.T) {
	strategies := []Strategy{SizeOnly{}, SizeAndLastModified{}, ETag{}}
	for _, s := range strategies {
		for _, d := range []int64{-3, -1, 1, 1 << 40} {
			src := summary(100+d, at(1))
			dst := summary(100, at(1000))
			src.ETag, dst.ETag = "same", "same"
			assert.True(t, s.SourceDifferent(src, dst), "%s with size delta %d", s.Name(), d)
		}
	}
}

func TestETag(t *testing.T) {
	s := ETag{}
	withTag := func(size int64, tag string, mtime *time.Time) store.FileSummary {
		fs := summary(size, mtime)
		fs.ETag = tag
		return fs
	}

	assert.False(t, s.SourceDifferent(withTag(5, "abc", at(900)), withTag(5, "abc", at(100))),
		"matching etags ignore timestamps")
	assert.True(t, s.SourceDifferent(withTag(5, "abc", at(1)), withTag(5, "def", at(100))))
	assert.True(t, s.SourceDifferent(withTag(6, "abc", at(1)), withTag(5, "abc", at(1))))

	// one side has no tag: falls back to size + mtime
	assert.True(t, s.SourceDifferent(withTag(5, "abc", at(200)), withTag(5, "", at(100))))
	assert.False(t, s.SourceDifferent(withTag(5, "", at(100)), withTag(5, "abc", at(200))))
	assert.True(t, s.SourceDifferent(withTag(5, "", nil), withTag(5, "", at(200))))
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", NameETag},
		{"etag", NameETag},
		{"ETAG", NameETag},
		{"size", NameSize},
		{"size-only", NameSize},
		{"size-mtime", NameSizeMTime},
		{" size-and-last-modified ", NameSizeMTime},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			s, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Name())
		})
	}

	_, err := Parse("checksum")
	assert.ErrorContains(t, err, "unknown compare strategy")
}

func TestStrategiesConcurrent(t *testing.T) {
	s := SizeAndLastModified{}
	src, dst := summary(5, at(200)), summary(5, at(100))

	var wg sync.WaitGroup
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				assert.True(t, s.SourceDifferent(src, dst))
			}
		}()
	}
	wg.Wait()
}
