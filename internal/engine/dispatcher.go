package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Dispatcher runs jobs on a fixed pool of workers and bounds the number of
// jobs submitted but not yet complete. Submit blocks once the bound is
// reached until some job signals completion.
type Dispatcher struct {
	sem         *semaphore.Weighted
	jobs        chan Job
	wg          sync.WaitGroup
	outstanding atomic.Int64
	peak        atomic.Int64
	closeOnce   sync.Once
}

// NewDispatcher starts workers goroutines that run submitted jobs with ctx.
func NewDispatcher(ctx context.Context, workers int) *Dispatcher {
	workers = max(workers, 1)
	d := &Dispatcher{
		sem:  semaphore.NewWeighted(int64(workers)),
		jobs: make(chan Job),
	}
	d.wg.Add(workers)
	for range workers {
		go func() {
			defer d.wg.Done()
			for job := range d.jobs {
				job.Run(ctx)
			}
		}()
	}
	return d
}

// Submit admits job once fewer than the configured number of jobs are
// outstanding, then hands it to a worker. It returns ctx.Err() if ctx ends
// first, in which case job never runs.
func (d *Dispatcher) Submit(ctx context.Context, job Job) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	n := d.outstanding.Add(1)
	for {
		p := d.peak.Load()
		if n <= p || d.peak.CompareAndSwap(p, n) {
			break
		}
	}
	job.base().onDone(d.release)

	select {
	case d.jobs <- job:
		return nil
	case <-ctx.Done():
		d.release()
		return ctx.Err()
	}
}

func (d *Dispatcher) release() {
	d.outstanding.Add(-1)
	d.sem.Release(1)
}

// Wait stops accepting jobs and blocks until every submitted job has run.
// Submit must not be called after Wait.
func (d *Dispatcher) Wait() {
	d.closeOnce.Do(func() { close(d.jobs) })
	d.wg.Wait()
}

// Outstanding returns the number of jobs submitted but not yet complete.
func (d *Dispatcher) Outstanding() int64 { return d.outstanding.Load() }

// Peak returns the highest Outstanding value observed.
func (d *Dispatcher) Peak() int64 { return d.peak.Load() }
