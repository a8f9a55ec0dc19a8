package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/s3mirror/internal/event"
	"github.com/bamsammich/s3mirror/internal/stats"
	"github.com/bamsammich/s3mirror/internal/store"
)

func boolPtr(b bool) *bool { return &b }

func tieredObject(archive string, ongoing *bool) store.FileSummary {
	now := time.Now()
	return store.FileSummary{
		Key:            "cold.bin",
		LastModified:   &now,
		StorageClass:   storageClassIntelligentTiering,
		ArchiveStatus:  archive,
		OngoingRestore: ongoing,
	}
}

// listed strips the fields a listing does not report.
func listed(s store.FileSummary) store.FileSummary {
	s.ArchiveStatus = ""
	s.OngoingRestore = nil
	return s
}

func TestRestore_ArchivedTriggersRestoreOnce(t *testing.T) {
	for _, archive := range []string{archiveAccess, deepArchiveAccess} {
		t.Run(archive, func(t *testing.T) {
			m, src, dst := newTestMirror(t, "s3", "s3", Options{RestoreTiering: true})
			obj := tieredObject(archive, boolPtr(false))
			src.addSummary(obj, "frozen")
			ch := make(chan event.Event, 4)
			m.opts.Events = ch

			assert.Equal(t, 1, runJob(context.Background(), m.NewCopyJob(listed(srcSummary(t, src, "cold.bin")))))

			assert.Equal(t, []string{"cold.bin"}, src.restores)
			assert.Zero(t, dst.count("copy", "cold.bin"), "copy is deferred this pass")
			assert.False(t, dst.has("cold.bin"))
			requireCounter(t, m, stats.RestoreOps, 1)
			requireCounter(t, m, stats.CopyErrors, 0)
			requireCounter(t, m, stats.ObjectsSkipped, 0)
			require.Len(t, ch, 1)
			assert.Equal(t, event.RestoreRequested, (<-ch).Type)
		})
	}
}

func TestRestore_OngoingRestoreNotReissued(t *testing.T) {
	m, src, dst := newTestMirror(t, "s3", "s3", Options{RestoreTiering: true})
	src.addSummary(tieredObject(archiveAccess, boolPtr(true)), "frozen")

	runJob(context.Background(), m.NewCopyJob(listed(srcSummary(t, src, "cold.bin"))))

	assert.Empty(t, src.restores)
	assert.Zero(t, dst.count("copy", "cold.bin"))
	requireCounter(t, m, stats.RestoreOps, 0)
	requireCounter(t, m, stats.CopyErrors, 0)
}

func TestRestore_UnsupportedStorageClassFailsWithoutRetry(t *testing.T) {
	m, src, dst := newTestMirror(t, "s3", "s3", Options{RestoreTiering: true, MaxRetries: 5})
	now := time.Now()
	src.addSummary(store.FileSummary{Key: "g", StorageClass: "GLACIER", LastModified: &now}, "ice")

	var captured error
	m.opts.Events = nil
	j := m.NewCopyJob(srcSummary(t, src, "g"))
	j.op = &capturingOp{CopyJob: j, err: &captured}

	runJob(context.Background(), j)

	require.Error(t, captured)
	assert.ErrorIs(t, captured, ErrUnsupportedStorageClass)
	var ce *ConfigurationError
	require.True(t, errors.As(captured, &ce))
	assert.Equal(t, "GLACIER", ce.Value)

	assert.Zero(t, dst.count("copy", "g"))
	assert.Equal(t, 1, dst.count("head", "g"))
	assert.Empty(t, src.restores)
	requireCounter(t, m, stats.CopyErrors, 1)
}

func TestRestore_UnsupportedArchiveStatus(t *testing.T) {
	m, src, dst := newTestMirror(t, "s3", "s3", Options{RestoreTiering: true})
	src.addSummary(tieredObject("FROZEN_ACCESS", nil), "x")

	runJob(context.Background(), m.NewCopyJob(listed(srcSummary(t, src, "cold.bin"))))

	assert.Empty(t, src.restores)
	assert.False(t, dst.has("cold.bin"))
	requireCounter(t, m, stats.CopyErrors, 1)
}

func TestRestore_NoRestoreNeeded(t *testing.T) {
	tests := []struct {
		name    string
		summary store.FileSummary
	}{
		{"standard", store.FileSummary{Key: "cold.bin", StorageClass: store.StorageClassStandard}},
		{"unset class", store.FileSummary{Key: "cold.bin"}},
		{"tiering frequent access", tieredObject("", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, src, dst := newTestMirror(t, "s3", "s3", Options{RestoreTiering: true})
			src.addSummary(tt.summary, "warm")

			runJob(context.Background(), m.NewCopyJob(srcSummary(t, src, "cold.bin")))

			assert.Empty(t, src.restores)
			assert.Equal(t, "warm", dst.content("cold.bin"))
			requireCounter(t, m, stats.ObjectsCopied, 1)
		})
	}
}

func TestRestore_DisabledIgnoresTier(t *testing.T) {
	m, src, dst := newTestMirror(t, "s3", "s3", Options{})
	now := time.Now()
	src.addSummary(store.FileSummary{Key: "g", StorageClass: "GLACIER", LastModified: &now}, "ice")

	runJob(context.Background(), m.NewCopyJob(srcSummary(t, src, "g")))

	assert.Equal(t, "ice", dst.content("g"))
	requireCounter(t, m, stats.CopyErrors, 0)
}

func TestRestore_DryRunRequestsNothing(t *testing.T) {
	m, src, _ := newTestMirror(t, "s3", "s3", Options{RestoreTiering: true, DryRun: true})
	src.addSummary(tieredObject(deepArchiveAccess, nil), "frozen")

	runJob(context.Background(), m.NewCopyJob(listed(srcSummary(t, src, "cold.bin"))))

	assert.Empty(t, src.restores)
	requireCounter(t, m, stats.RestoreOps, 0)
}

// capturingOp records the error passed to failed.
type capturingOp struct {
	*CopyJob
	err *error
}

func (c *capturingOp) failed(err error) {
	*c.err = err
	c.CopyJob.failed(err)
}
