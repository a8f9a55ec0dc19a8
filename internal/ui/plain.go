package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/s3mirror/internal/event"
	"github.com/bamsammich/s3mirror/internal/stats"
)

const (
	progressEvery = 5 * time.Second
	sparkWidth    = 20
)

// plainPresenter outputs one line per finished key to stdout, and periodic
// progress and stats reports to stderr.
type plainPresenter struct {
	w           io.Writer
	errW        io.Writer
	stats       *stats.MirrorStats
	inFlight    func() int64
	workers     int
	reportEvery time.Duration
	sparkline   bool
	verbose     bool
}

func (p *plainPresenter) Run(events <-chan event.Event) error {
	return runLoop(events, p.stats, p.reportEvery, p.handleEvent, p.printProgress, p.printReport)
}

// runLoop drains events while sampling the stats once a second, calling
// progress every progressEvery and report every reportEvery (when > 0).
func runLoop(
	events <-chan event.Event,
	st *stats.MirrorStats,
	reportEvery time.Duration,
	handle func(event.Event),
	progress, report func(),
) error {
	sample := time.NewTicker(time.Second)
	defer sample.Stop()

	var reportC <-chan time.Time
	if reportEvery > 0 {
		t := time.NewTicker(reportEvery)
		defer t.Stop()
		reportC = t.C
	}

	lastProgress := time.Now()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			handle(ev)
		case <-sample.C:
			if st != nil {
				st.Tick()
			}
			if progress != nil && time.Since(lastProgress) >= progressEvery {
				lastProgress = time.Now()
				progress()
			}
		case <-reportC:
			report()
		}
	}
}

func (p *plainPresenter) handleEvent(ev event.Event) {
	switch ev.Type {
	case event.KeyCopied:
		fmt.Fprintf(p.w, "copy: %s -> %s  %s\n", ev.Key, ev.Destination, FormatBytes(ev.Size))
	case event.KeyUploaded:
		fmt.Fprintf(p.w, "upload: %s -> %s  %s\n", ev.Key, ev.Destination, FormatBytes(ev.Size))
	case event.KeyFailed, event.DeleteFailed:
		errMsg := "error"
		if ev.Error != nil {
			errMsg = ev.Error.Error()
		}
		fmt.Fprintf(p.w, "FAILED %s: %s  %s\n", ev.Pass, ev.Key, errMsg)
	case event.KeySkipped:
		if p.verbose {
			fmt.Fprintf(p.w, "%s  skipped\n", ev.Key)
		}
	case event.KeyDeleted:
		fmt.Fprintf(p.w, "delete: %s\n", ev.Destination)
	case event.RestoreRequested:
		fmt.Fprintf(p.w, "restore requested: %s\n", ev.Key)
	case event.DryRun:
		fmt.Fprintf(p.w, "(dry run) %s: %s\n", ev.Pass, ev.Key)
	case event.ListingFailed:
		fmt.Fprintf(p.errW, "listing failed (%s pass): %v\n", ev.Pass, ev.Error)
	case event.KeyStarted:
		if ev.Attempt > 1 {
			fmt.Fprintf(p.errW, "retry %s: %s (attempt %d)\n", ev.Pass, ev.Key, ev.Attempt)
		}
	case event.PassStarted, event.PassComplete, event.ListingPage:
		// progress only
	}
}

func (p *plainPresenter) printProgress() {
	if p.stats == nil {
		return
	}
	fmt.Fprintln(p.errW, progressLine(p.stats.Snapshot(), p.stats.RollingRate(10), p.busy(), p.workers))
	if p.sparkline {
		fmt.Fprintf(p.errW, "  %s\n", Sparkline(p.stats.RateHistory(sparkWidth), sparkWidth))
	}
}

func (p *plainPresenter) busy() int {
	if p.inFlight == nil {
		return 0
	}
	return int(p.inFlight())
}

func (p *plainPresenter) printReport() {
	if p.stats != nil {
		fmt.Fprint(p.errW, p.stats.Snapshot().Report())
	}
}

func (p *plainPresenter) Summary() string {
	if p.stats == nil {
		return ""
	}
	return completionSummary(p.stats.Snapshot())
}

// progressLine renders a one-line progress update. The worker indicator is
// shown only for pools small enough to fit on a line.
func progressLine(snap stats.Snapshot, rate float64, busy, workers int) string {
	line := fmt.Sprintf("progress: read %s  copied %s  skipped %s  deleted %s  errors %d  %s  elapsed %s",
		FormatCount(snap.Get(stats.ObjectsRead)),
		FormatCount(snap.Get(stats.ObjectsCopied)+snap.Get(stats.ObjectsPut)),
		FormatCount(snap.Get(stats.ObjectsSkipped)),
		FormatCount(snap.Get(stats.ObjectsDeleted)),
		snap.Failures(),
		FormatObjectRate(rate),
		FormatDuration(snap.Elapsed),
	)
	if workers > 0 && workers <= 32 {
		line += "  " + WorkerIndicator(min(busy, workers), workers)
	}
	return line
}
