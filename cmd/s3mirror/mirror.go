package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bamsammich/s3mirror/internal/config"
	"github.com/bamsammich/s3mirror/internal/engine"
	"github.com/bamsammich/s3mirror/internal/event"
	"github.com/bamsammich/s3mirror/internal/server"
	"github.com/bamsammich/s3mirror/internal/stats"
	"github.com/bamsammich/s3mirror/internal/store"
	"github.com/bamsammich/s3mirror/internal/ui"
)

// mirrorRun holds everything needed to mirror once. Scheduled mode calls
// once repeatedly with the same stores.
type mirrorRun struct {
	opts       engine.Options
	src, dst   store.Store
	srv        *server.Server
	stdout     io.Writer
	stderr     io.Writer
	srcDisplay string
	dstDisplay string

	maxAge         time.Duration
	reportInterval time.Duration
	workers        int

	logFailures bool
	logEvents   bool
	quiet       bool
	verbose     bool
}

// once performs a single mirror pass with fresh stats and returns its result.
func (r *mirrorRun) once(ctx context.Context) engine.Result {
	runID := uuid.NewString()
	if r.maxAge > 0 {
		r.opts.Filter.SetMaxAge(r.maxAge, time.Now())
	}

	st := stats.New(r.logFailures)
	events := make(chan event.Event, 256)
	opts := r.opts
	opts.Events = events
	m := engine.New(opts, r.src, r.dst, st)
	if r.srv != nil {
		r.srv.Track(m)
	}

	attrs := []any{
		"run", runID,
		"src", r.srcDisplay,
		"dst", r.dstDisplay,
		"workers", r.workers,
		"delete", opts.DeleteRemoved,
	}
	if opts.Filter != nil && !opts.Filter.Cutoff().IsZero() {
		attrs = append(attrs, "modified_after", opts.Filter.Cutoff().Format(time.RFC3339))
	}
	slog.Debug("starting mirror", attrs...)

	// When --log is set, tee events through a logging goroutine that writes
	// structured records before forwarding to the presenter.
	presenterEvents := (<-chan event.Event)(events)
	if r.logEvents {
		presenterEvents = teeEvents(events)
	}

	presenter := ui.NewPresenter(ui.Config{
		Writer:         r.stdout,
		ErrWriter:      r.stderr,
		Stats:          st,
		InFlight:       m.Outstanding,
		Workers:        r.workers,
		ReportInterval: r.reportInterval,
		IsTTY:          isTerminal(r.stderr),
		Quiet:          r.quiet,
		Verbose:        r.verbose,
	})

	var presenterErr error
	var presenterWg sync.WaitGroup
	presenterWg.Add(1)
	go func() {
		defer presenterWg.Done()
		presenterErr = presenter.Run(presenterEvents)
	}()

	res := m.Run(ctx)
	close(events)
	presenterWg.Wait()
	if presenterErr != nil {
		fmt.Fprintf(r.stderr, "presenter: %v\n", presenterErr)
	}

	if !r.quiet {
		if summary := presenter.Summary(); summary != "" {
			fmt.Fprintln(r.stderr, summary)
		}
		fmt.Fprint(r.stderr, res.Stats.Report())
	}
	if res.Err != nil {
		slog.Error("mirror failed", "run", runID, "error", res.Err)
	}

	r.record(runID, res)
	return res
}

// record writes the last-run summary; failures are logged, not fatal.
func (r *mirrorRun) record(runID string, res engine.Result) {
	counters := make(map[string]int64, len(res.Stats.Counters))
	for _, c := range stats.Counters() {
		counters[c.String()] = res.Stats.Get(c)
	}
	rec := config.RunRecord{
		RunID:          runID,
		Source:         r.srcDisplay,
		Destination:    r.dstDisplay,
		Started:        res.Stats.Start,
		Finished:       res.Stats.Start.Add(res.Stats.Elapsed),
		CompletedFully: res.Stats.CompletedFully && res.Err == nil,
		Counters:       counters,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if err := config.WriteRunRecord(rec); err != nil {
		slog.Warn("failed to write run record", "error", err)
	}
}

// teeEvents logs every event at Info and forwards it. The returned channel
// closes after in does.
func teeEvents(in <-chan event.Event) <-chan event.Event {
	out := make(chan event.Event, cap(in))
	go func() {
		defer close(out)
		for ev := range in {
			attrs := []slog.Attr{
				slog.String("type", ev.Type.String()),
				slog.String("pass", string(ev.Pass)),
				slog.String("key", ev.Key),
				slog.Int64("size", ev.Size),
			}
			if ev.Destination != "" {
				attrs = append(attrs, slog.String("dst", ev.Destination))
			}
			if ev.Attempt > 0 {
				attrs = append(attrs, slog.Int("attempt", ev.Attempt))
			}
			if ev.Error != nil {
				attrs = append(attrs, slog.String("error", ev.Error.Error()))
			}
			slog.LogAttrs(context.Background(), slog.LevelInfo, "mirror.event", attrs...)
			out <- ev
		}
	}()
	return out
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && ui.IsTTY(f.Fd())
}
