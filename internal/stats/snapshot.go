package stats

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Snapshot is an immutable point-in-time copy of MirrorStats.
type Snapshot struct {
	Start          time.Time
	FailedCopies   []FailedOperation
	FailedDeletes  []FailedOperation
	Counters       [numCounters]int64
	Elapsed        time.Duration
	CompletedFully bool
}

// Get returns the value of c at snapshot time.
func (s Snapshot) Get(c Counter) int64 { return s.Counters[c] }

// Failures returns the total number of failed copies and deletes.
func (s Snapshot) Failures() int64 {
	return s.Counters[CopyErrors] + s.Counters[DeleteErrors]
}

// AsMap renders every counter as a decimal string keyed by counter name.
func (s Snapshot) AsMap() map[string]string {
	m := make(map[string]string, numCounters)
	for i, v := range s.Counters {
		m[Counter(i).String()] = strconv.FormatInt(v, 10)
	}
	return m
}

// perMinute returns n divided by the elapsed time in minutes.
func (s Snapshot) perMinute(n int64) float64 {
	minutes := s.Elapsed.Minutes()
	if minutes <= 0 {
		return 0
	}
	return float64(n) / minutes
}

// String renders the multi-line report.
func (s Snapshot) String() string {
	var b strings.Builder
	line := func(label string, v any) { fmt.Fprintf(&b, "%s: %v\n", label, v) }

	line("read", s.Counters[ObjectsRead])
	line("listings", s.Counters[Listings])
	line("listings errors", s.Counters[ListingErrors])
	line("copied", s.Counters[ObjectsCopied])
	line("copy errors", s.Counters[CopyErrors])
	line("uploaded", s.Counters[ObjectsPut])
	line("skipped", s.Counters[ObjectsSkipped])
	line("deleted", s.Counters[ObjectsDeleted])
	line("delete errors", s.Counters[DeleteErrors])
	line("duration", FormatClock(s.Elapsed))
	fmt.Fprintf(&b, "read rate: %.2f/minute\n", s.perMinute(s.Counters[ObjectsRead]))
	fmt.Fprintf(&b, "copy+upload rate: %.2f/minute\n",
		s.perMinute(s.Counters[ObjectsCopied]+s.Counters[ObjectsPut]))
	fmt.Fprintf(&b, "delete rate: %.2f/minute\n", s.perMinute(s.Counters[ObjectsDeleted]))
	line("bytes copied", FormatBytes(s.Counters[BytesCopied]))
	line("bytes uploaded", FormatBytes(s.Counters[BytesUploaded]))
	line("GET operations", s.Counters[GetOps])
	line("COPY operations", s.Counters[CopyOps])
	line("RESTORE operations", s.Counters[RestoreOps])
	line("PUT operations", s.Counters[PutOps])
	line("DELETE operations", s.Counters[DeleteOps])

	for _, op := range s.FailedCopies {
		fmt.Fprintf(&b, "failed copy: %s -> %s\n", op.Source, op.Destination)
	}
	for _, op := range s.FailedDeletes {
		fmt.Fprintf(&b, "failed delete: %s -> %s\n", op.Source, op.Destination)
	}
	return b.String()
}

const banner = "--------------------------------------------------------------------"

// Report wraps String in the banner used for final and periodic reports.
func (s Snapshot) Report() string {
	return "\n" + banner + "\nSTATS BEGIN\n" + s.String() + "STATS END\n" + banner + "\n"
}
