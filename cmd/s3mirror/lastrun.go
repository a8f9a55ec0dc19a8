package main

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/s3mirror/internal/config"
	"github.com/bamsammich/s3mirror/internal/ui"
)

// newLastRunCmd reports the record written at the end of the previous run.
// It exits 1 when that run did not complete fully, so it can back a health
// check for scheduled mirrors.
func newLastRunCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "last-run",
		Short: "Show the outcome of the most recent mirror run",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			rec, err := config.ReadRunRecord()
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("no run recorded at %s", config.RecordPath())
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", config.RecordPath(), err)
			}
			printRunRecord(stdout, rec)
			if !rec.CompletedFully {
				return &exitError{code: 1}
			}
			return nil
		},
	}
}

func printRunRecord(w io.Writer, rec config.RunRecord) {
	status := "complete"
	if !rec.CompletedFully {
		status = "incomplete"
	}
	fmt.Fprintf(w, "run       %s\n", rec.RunID)
	fmt.Fprintf(w, "source    %s\n", rec.Source)
	fmt.Fprintf(w, "dest      %s\n", rec.Destination)
	fmt.Fprintf(w, "started   %s\n", rec.Started.Format(time.RFC3339))
	fmt.Fprintf(w, "finished  %s (%s)\n", rec.Finished.Format(time.RFC3339),
		ui.FormatDuration(rec.Finished.Sub(rec.Started)))
	fmt.Fprintf(w, "status    %s\n", status)
	if rec.Error != "" {
		fmt.Fprintf(w, "error     %s\n", rec.Error)
	}
	for _, name := range slices.Sorted(maps.Keys(rec.Counters)) {
		fmt.Fprintf(w, "  %-22s %d\n", name, rec.Counters[name])
	}
}
