package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bamsammich/s3mirror/internal/event"
	"github.com/bamsammich/s3mirror/internal/stats"
	"github.com/bamsammich/s3mirror/internal/store"
)

var _ Job = (*CopyJob)(nil)

// CopyJob brings one destination key up to date with its source key.
type CopyJob struct {
	keyJob
	summary  store.FileSummary
	server   bool // last transfer was a server-side copy
	deferred bool // waiting on an archive restore
}

// NewCopyJob creates a copy job for a source listing entry.
func (m *Mirror) NewCopyJob(summary store.FileSummary) *CopyJob {
	j := &CopyJob{summary: summary}
	j.keyJob = keyJob{
		m:    m,
		op:   j,
		src:  summary.Key,
		dst:  m.opts.DestKey(summary.Key),
		pass: event.PassCopy,
	}
	return j
}

func (j *CopyJob) evaluate(ctx context.Context) (bool, error) {
	m := j.m
	m.stats.Inc(stats.GetOps)
	dst, err := m.dst.Head(ctx, j.dst)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if m.opts.Verbose {
			slog.Debug("destination missing", "src", j.src, "dst", j.dst)
		}
	case store.IsPermanent(err):
		return false, err
	case err != nil:
		// Copying an unchanged key is harmless; skipping a changed one is not.
		slog.Warn("destination lookup failed, copying anyway", "dst", j.dst, "error", err)
	default:
		if !m.opts.strategy().SourceDifferent(j.summary, dst) {
			return false, nil
		}
	}

	deferred, err := j.checkRestore(ctx)
	if err != nil {
		return false, err
	}
	j.deferred = deferred
	return !deferred, nil
}

// useServerCopy reports whether the object can be copied inside the
// backend instead of streamed through this process.
func (j *CopyJob) useServerCopy() bool {
	m := j.m
	if m.src.Kind() != "s3" || m.dst.Kind() != "s3" {
		return false
	}
	if _, ok := m.dst.(store.Copier); !ok {
		return false
	}
	return j.summary.Size <= store.MaxServerSideCopySize
}

func (j *CopyJob) perform(ctx context.Context) error {
	if j.useServerCopy() {
		j.server = true
		j.m.stats.Inc(stats.CopyOps)
		copier := j.m.dst.(store.Copier) //nolint:forcetypeassert // checked by useServerCopy
		return copier.Copy(ctx, j.m.src.Bucket(), j.src, j.dst, j.m.opts.Put)
	}
	j.server = false
	return j.stream(ctx)
}

// stream copies the object through this process, honoring the bandwidth
// limit.
func (j *CopyJob) stream(ctx context.Context) error {
	m := j.m
	m.stats.Inc(stats.GetOps)
	body, summary, err := m.src.Get(ctx, j.src)
	if err != nil {
		return fmt.Errorf("get %s: %w", j.src, err)
	}
	defer body.Close()

	size := summary.Size
	if size == 0 && j.summary.Size > 0 {
		size = j.summary.Size
	}

	r := newRateLimitedReader(ctx, body, m.opts.BWLimit)
	m.stats.Inc(stats.PutOps)
	if err := m.dst.Put(ctx, j.dst, r, size, m.opts.Put); err != nil {
		return fmt.Errorf("put %s: %w", j.dst, err)
	}
	j.summary.Size = size
	return nil
}

func (j *CopyJob) succeeded() {
	m := j.m
	typ := event.KeyUploaded
	if j.server {
		typ = event.KeyCopied
		m.stats.Inc(stats.ObjectsCopied)
		m.stats.Add(stats.BytesCopied, j.summary.Size)
	} else {
		m.stats.Inc(stats.ObjectsPut)
		m.stats.Add(stats.BytesUploaded, j.summary.Size)
	}
	if m.opts.Verbose {
		slog.Info("copied", "src", j.src, "dst", j.dst, "size", j.summary.Size, "server_side", j.server)
	}
	m.emit(event.Event{Type: typ, Pass: event.PassCopy, Key: j.src, Destination: j.dst, Size: j.summary.Size})
}

func (j *CopyJob) failed(err error) {
	j.m.stats.AddErroredCopy(j)
	j.m.emit(event.Event{Type: event.KeyFailed, Pass: event.PassCopy, Key: j.src, Destination: j.dst, Error: err})
}

func (j *CopyJob) skipped() {
	if j.deferred {
		return
	}
	j.m.stats.Inc(stats.ObjectsSkipped)
	j.m.emit(event.Event{Type: event.KeySkipped, Pass: event.PassCopy, Key: j.src, Destination: j.dst, Size: j.summary.Size})
}

func (j *CopyJob) dryRun() {
	slog.Info("dry run: would copy", "src", j.src, "dst", j.dst, "size", j.summary.Size)
	j.m.emit(event.Event{Type: event.DryRun, Pass: event.PassCopy, Key: j.src, Destination: j.dst, Size: j.summary.Size})
}
