package ui

import (
	"fmt"

	"github.com/bamsammich/s3mirror/internal/stats"
)

// completionSummary builds a final summary line from a snapshot.
// Format: done ✓  objects 48,917  copied 1,204  deleted 3  size 2.1 GB  time 3m 17s  errors 0
func completionSummary(snap stats.Snapshot) string {
	icon := "✓"
	if !snap.CompletedFully {
		icon = "✗"
	}

	transferred := snap.Get(stats.ObjectsCopied) + snap.Get(stats.ObjectsPut)
	base := fmt.Sprintf("done %s  objects %s  copied %s  size %s  time %s",
		icon,
		FormatCount(snap.Get(stats.ObjectsRead)),
		FormatCount(transferred),
		FormatBytes(snap.Get(stats.BytesCopied)+snap.Get(stats.BytesUploaded)),
		FormatDuration(snap.Elapsed),
	)

	if deleted := snap.Get(stats.ObjectsDeleted); deleted > 0 {
		base = fmt.Sprintf("%s  deleted %s", base, FormatCount(deleted))
	}

	return fmt.Sprintf("%s  errors %d", base, snap.Failures())
}
