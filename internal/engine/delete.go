package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bamsammich/s3mirror/internal/event"
	"github.com/bamsammich/s3mirror/internal/stats"
	"github.com/bamsammich/s3mirror/internal/store"
)

var _ Job = (*DeleteJob)(nil)

// DeleteJob removes a destination key whose source counterpart is gone.
type DeleteJob struct {
	keyJob
	summary store.FileSummary
}

// NewDeleteJob creates a delete job for a destination listing entry.
func (m *Mirror) NewDeleteJob(summary store.FileSummary) *DeleteJob {
	j := &DeleteJob{summary: summary}
	j.keyJob = keyJob{
		m:    m,
		op:   j,
		src:  m.opts.SourceKey(summary.Key),
		dst:  summary.Key,
		pass: event.PassDelete,
	}
	return j
}

// evaluate reports whether the source key is absent. Any lookup error other
// than not-found keeps the destination key: a transient fault must never
// cause data loss.
func (j *DeleteJob) evaluate(ctx context.Context) (bool, error) {
	j.m.stats.Inc(stats.GetOps)
	_, err := j.m.src.Head(ctx, j.src)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, store.ErrNotFound):
		return true, nil
	default:
		slog.Warn("source lookup failed, not deleting", "src", j.src, "dst", j.dst, "error", err)
		return false, nil
	}
}

func (j *DeleteJob) perform(ctx context.Context) error {
	j.m.stats.Inc(stats.DeleteOps)
	return j.m.dst.Delete(ctx, j.dst)
}

func (j *DeleteJob) succeeded() {
	j.m.stats.Inc(stats.ObjectsDeleted)
	if j.m.opts.Verbose {
		slog.Info("deleted", "dst", j.dst)
	}
	j.m.emit(event.Event{Type: event.KeyDeleted, Pass: event.PassDelete, Key: j.dst, Destination: j.dst, Size: j.summary.Size})
}

func (j *DeleteJob) failed(err error) {
	j.m.stats.AddErroredDelete(j)
	j.m.emit(event.Event{Type: event.DeleteFailed, Pass: event.PassDelete, Key: j.dst, Destination: j.dst, Error: err})
}

func (*DeleteJob) skipped() {}

func (j *DeleteJob) dryRun() {
	slog.Info("dry run: would delete", "dst", j.dst)
	j.m.emit(event.Event{Type: event.DryRun, Pass: event.PassDelete, Key: j.dst, Destination: j.dst, Size: j.summary.Size})
}
