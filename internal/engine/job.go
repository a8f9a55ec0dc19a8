package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bamsammich/s3mirror/internal/event"
	"github.com/bamsammich/s3mirror/internal/stats"
	"github.com/bamsammich/s3mirror/internal/store"
)

// Job is the unit of work for one key. The set of jobs is closed: CopyJob
// and DeleteJob.
type Job interface {
	Source() string
	Destination() string

	// Run executes the job to completion on the calling goroutine and always
	// signals completion before returning.
	Run(ctx context.Context)

	base() *keyJob
}

// operation is the variant-specific half of a job.
type operation interface {
	// evaluate decides whether perform is needed. An error fails the job
	// without retries.
	evaluate(ctx context.Context) (bool, error)
	perform(ctx context.Context) error
	succeeded()
	failed(err error)
	skipped()
	dryRun()
}

type outcome int

const (
	outcomePending outcome = iota
	outcomeSucceeded
	outcomeFailed
	outcomeSkipped
)

// keyJob is the retry and reporting skeleton shared by both job kinds.
type keyJob struct {
	m       *Mirror
	op      operation
	done    func()
	once    sync.Once
	src     string
	dst     string
	pass    event.Pass
	outcome outcome
}

func (k *keyJob) Source() string      { return k.src }
func (k *keyJob) Destination() string { return k.dst }
func (k *keyJob) base() *keyJob       { return k }

// onDone registers the completion signal. It fires exactly once.
func (k *keyJob) onDone(fn func()) { k.done = fn }

func (k *keyJob) Run(ctx context.Context) {
	defer k.finish()

	need, err := k.op.evaluate(ctx)
	if err != nil {
		k.fail(err)
		return
	}
	if !need {
		k.outcome = outcomeSkipped
		k.op.skipped()
		return
	}
	if k.m.opts.DryRun {
		k.outcome = outcomeSkipped
		k.op.dryRun()
		return
	}
	k.attempt(ctx)
}

// attempt runs perform up to MaxRetries times. Cancellation while waiting
// between attempts abandons the remaining ones.
func (k *keyJob) attempt(ctx context.Context) {
	maxTries := k.m.opts.maxRetries()
	var err error
	key := k.src
	if k.pass == event.PassDelete {
		key = k.dst
	}
	for try := 1; try <= maxTries; try++ {
		if k.m.opts.Verbose {
			slog.Debug("attempting", "pass", k.pass, "src", k.src, "dst", k.dst, "try", try)
		}
		k.m.emit(event.Event{Type: event.KeyStarted, Pass: k.pass, Key: key, Destination: k.dst, Attempt: try})
		if err = k.op.perform(ctx); err == nil {
			k.outcome = outcomeSucceeded
			k.op.succeeded()
			return
		}
		if !retryable(err) {
			break
		}
		slog.Warn("attempt failed", "pass", k.pass, "src", k.src, "dst", k.dst, "try", try, "error", err)
		if try == maxTries {
			break
		}

		timer := time.NewTimer(k.m.opts.retryDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			k.fail(fmt.Errorf("interrupted after %d attempt(s): %w", try, err))
			return
		case <-timer.C:
		}
	}
	k.fail(err)
}

func (k *keyJob) fail(err error) {
	k.outcome = outcomeFailed
	slog.Error("giving up", "pass", k.pass, "src", k.src, "dst", k.dst, "error", err)
	k.op.failed(err)
}

// finish converts a panic into a failure and signals completion.
func (k *keyJob) finish() {
	if r := recover(); r != nil {
		slog.Error("job panicked", "pass", k.pass, "src", k.src, "dst", k.dst, "panic", r)
		if k.outcome == outcomePending {
			k.fail(fmt.Errorf("panic: %v", r))
		}
	}
	if k.m.opts.Verbose {
		slog.Debug("done with key", "pass", k.pass, "src", k.src, "dst", k.dst)
	}
	k.once.Do(func() {
		if k.done != nil {
			k.done()
		}
	})
}

// Mirror holds what every job of one run shares: options, both stores and
// the stats aggregator. The stores are constructed once by the caller.
type Mirror struct {
	opts  *Options
	src   store.Store
	dst   store.Store
	stats *stats.MirrorStats
	disp  atomic.Pointer[Dispatcher]
}

// New prepares a mirror run from src to dst.
func New(opts Options, src, dst store.Store, st *stats.MirrorStats) *Mirror {
	return &Mirror{opts: &opts, src: src, dst: dst, stats: st}
}

// Stats returns the run's aggregator.
func (m *Mirror) Stats() *stats.MirrorStats { return m.stats }

// Outstanding returns the number of jobs submitted but not yet complete.
func (m *Mirror) Outstanding() int64 {
	if d := m.disp.Load(); d != nil {
		return d.Outstanding()
	}
	return 0
}

func (m *Mirror) emit(e event.Event) { event.Emit(m.opts.Events, e) }
