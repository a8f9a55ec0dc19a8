package engine

import (
	"context"
	"log/slog"

	"github.com/bamsammich/s3mirror/internal/event"
	"github.com/bamsammich/s3mirror/internal/stats"
	"github.com/bamsammich/s3mirror/internal/store"
)

const (
	storageClassIntelligentTiering = "INTELLIGENT_TIERING"
	archiveAccess                  = "ARCHIVE_ACCESS"
	deepArchiveAccess              = "DEEP_ARCHIVE_ACCESS"
)

var supportedStorageClasses = map[string]bool{
	store.StorageClassStandard:     true,
	storageClassIntelligentTiering: true,
}

var supportedArchiveStatuses = map[string]bool{
	archiveAccess:     true,
	deepArchiveAccess: true,
}

// checkRestore inspects the source object's tier before a copy. It returns
// true when the object sits in an intelligent-tiering archive and the copy
// must wait for an asynchronous restore; a restore is requested unless one
// is already running. Unsupported tiers yield a ConfigurationError. The
// check runs once per job and is never retried.
func (j *CopyJob) checkRestore(ctx context.Context) (bool, error) {
	m := j.m
	if !m.opts.RestoreTiering {
		return false, nil
	}
	restorer, ok := m.src.(store.Restorer)
	if !ok {
		return false, nil
	}

	summary := j.summary
	class := summary.StorageClass
	if class == "" {
		class = store.StorageClassStandard
	}
	if !supportedStorageClasses[class] {
		return false, &ConfigurationError{Key: j.src, Err: ErrUnsupportedStorageClass, Value: class}
	}
	if class != storageClassIntelligentTiering {
		return false, nil
	}

	// Listings do not carry the archive status.
	if summary.ArchiveStatus == "" {
		m.stats.Inc(stats.GetOps)
		head, err := m.src.Head(ctx, j.src)
		if err != nil {
			return false, err
		}
		summary = head
	}
	if summary.ArchiveStatus == "" {
		return false, nil
	}
	if !supportedArchiveStatuses[summary.ArchiveStatus] {
		return false, &ConfigurationError{Key: j.src, Err: ErrUnsupportedArchiveStatus, Value: summary.ArchiveStatus}
	}

	if summary.RestoreInProgress() {
		slog.Info("restore in progress, deferring copy", "src", j.src, "archive_status", summary.ArchiveStatus)
		return true, nil
	}
	if m.opts.DryRun {
		slog.Info("dry run: would request restore", "src", j.src, "archive_status", summary.ArchiveStatus)
		return true, nil
	}

	m.stats.Inc(stats.RestoreOps)
	if err := restorer.Restore(ctx, j.src, m.opts.RestoreDays); err != nil {
		return false, err
	}
	slog.Info("restore requested, deferring copy", "src", j.src, "archive_status", summary.ArchiveStatus)
	m.emit(event.Event{Type: event.RestoreRequested, Pass: event.PassCopy, Key: j.src, Destination: j.dst, Size: j.summary.Size})
	return true, nil
}
