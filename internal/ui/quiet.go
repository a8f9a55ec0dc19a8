package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/s3mirror/internal/event"
	"github.com/bamsammich/s3mirror/internal/stats"
)

// quietPresenter prints nothing per key. It still samples the stats and
// emits periodic reports when an interval is configured.
type quietPresenter struct {
	stats       *stats.MirrorStats
	reportEvery time.Duration
	errW        io.Writer
}

func (p *quietPresenter) Run(events <-chan event.Event) error {
	return runLoop(events, p.stats, p.reportEvery, func(event.Event) {}, nil, p.printReport)
}

func (p *quietPresenter) printReport() {
	if p.stats != nil && p.errW != nil {
		fmt.Fprint(p.errW, p.stats.Snapshot().Report())
	}
}

func (p *quietPresenter) Summary() string {
	return ""
}
