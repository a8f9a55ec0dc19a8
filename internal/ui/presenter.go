package ui

import (
	"io"
	"time"

	"github.com/bamsammich/s3mirror/internal/event"
	"github.com/bamsammich/s3mirror/internal/stats"
)

// Presenter consumes events and displays progress.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan event.Event) error
	// Summary returns the final summary line.
	Summary() string
}

// Config configures a Presenter.
type Config struct {
	Writer    io.Writer
	ErrWriter io.Writer
	Stats     *stats.MirrorStats
	// InFlight reports jobs submitted but not yet complete; may be nil.
	InFlight func() int64
	Workers  int
	// ReportInterval prints the full stats report periodically when > 0.
	ReportInterval time.Duration
	IsTTY          bool
	Quiet          bool
	Verbose        bool
}

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn // factory function returns interface by design
func NewPresenter(cfg Config) Presenter {
	if cfg.Quiet {
		return &quietPresenter{stats: cfg.Stats, reportEvery: cfg.ReportInterval, errW: cfg.ErrWriter}
	}
	return &plainPresenter{
		w:           cfg.Writer,
		errW:        cfg.ErrWriter,
		stats:       cfg.Stats,
		inFlight:    cfg.InFlight,
		workers:     cfg.Workers,
		reportEvery: cfg.ReportInterval,
		sparkline:   cfg.IsTTY,
		verbose:     cfg.Verbose,
	}
}
