// Package engine mirrors one store into another: it lists keys, decides
// per key whether to copy or delete, and runs those jobs concurrently with
// retries while aggregating stats.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/bamsammich/s3mirror/internal/stats"
	"github.com/bamsammich/s3mirror/internal/store"
)

// Result is the outcome of a mirror run. Err is set when the run could not
// finish listing; per-key failures only clear Stats.CompletedFully.
type Result struct {
	Stats stats.Snapshot
	Err   error
}

// Run mirrors src into dst, blocking until every submitted job has finished.
func Run(ctx context.Context, opts Options, src, dst store.Store, st *stats.MirrorStats) Result {
	return New(opts, src, dst, st).Run(ctx)
}

// Run executes the copy pass and, when enabled, the delete pass. Both
// feed one dispatcher. The delete pass does not list the destination until
// the source listing has completed, so a missing or unreadable source never
// looks like a source with no keys. Jobs already submitted always run to
// completion, even when a listing fails.
func (m *Mirror) Run(ctx context.Context) Result {
	d := NewDispatcher(ctx, m.opts.maxConcurrent())
	m.disp.Store(d)

	slog.Info("mirror starting",
		"src", fmt.Sprintf("%s:%s/%s", m.src.Kind(), m.src.Bucket(), m.opts.SourcePrefix),
		"dst", fmt.Sprintf("%s:%s/%s", m.dst.Kind(), m.dst.Bucket(), m.opts.DestPrefix),
		"workers", m.opts.maxConcurrent(),
		"dry_run", m.opts.DryRun,
		"delete", m.opts.DeleteRemoved,
	)

	srcListed := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := m.copyPass(gctx, d); err != nil {
			return err
		}
		close(srcListed)
		return nil
	})
	if m.opts.DeleteRemoved {
		g.Go(func() error {
			select {
			case <-srcListed:
			case <-gctx.Done():
				return gctx.Err()
			}
			return m.deletePass(gctx, d)
		})
	}
	err := g.Wait()
	d.Wait()

	if err != nil {
		m.stats.MarkIncomplete()
	}
	snap := m.stats.Snapshot()
	slog.Info("mirror finished",
		"completed_fully", snap.CompletedFully,
		"copied", snap.Get(stats.ObjectsCopied),
		"uploaded", snap.Get(stats.ObjectsPut),
		"deleted", snap.Get(stats.ObjectsDeleted),
		"failures", snap.Failures(),
		"peak_in_flight", d.Peak(),
	)
	return Result{Stats: snap, Err: err}
}
