package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Counter names one of the aggregate counters kept by MirrorStats.
type Counter int

const (
	Listings Counter = iota
	ListingErrors
	ObjectsRead
	ObjectsCopied
	ObjectsPut
	ObjectsSkipped
	CopyErrors
	ObjectsDeleted
	DeleteErrors
	GetOps
	PutOps
	CopyOps
	DeleteOps
	RestoreOps
	BytesCopied
	BytesUploaded

	numCounters
)

var counterNames = [numCounters]string{
	Listings:       "listings",
	ListingErrors:  "listingsErrors",
	ObjectsRead:    "objectsRead",
	ObjectsCopied:  "objectsCopied",
	ObjectsPut:     "objectsPut",
	ObjectsSkipped: "objectsSkipped",
	CopyErrors:     "copyErrors",
	ObjectsDeleted: "objectsDeleted",
	DeleteErrors:   "deleteErrors",
	GetOps:         "getCount",
	PutOps:         "putCount",
	CopyOps:        "copyCount",
	DeleteOps:      "deleteCount",
	RestoreOps:     "restoreCount",
	BytesCopied:    "bytesCopied",
	BytesUploaded:  "bytesUploaded",
}

// String returns the counter's map key, e.g. "objectsCopied".
func (c Counter) String() string {
	if c < 0 || c >= numCounters {
		return "unknown"
	}
	return counterNames[c]
}

// Counters returns every counter in report order.
func Counters() []Counter {
	out := make([]Counter, numCounters)
	for i := range out {
		out[i] = Counter(i)
	}
	return out
}

// FailedOperation identifies one failed copy or delete.
type FailedOperation struct {
	Source      string
	Destination string
}

// Keyed is anything that can describe itself as a source/destination pair,
// such as an engine job.
type Keyed interface {
	Source() string
	Destination() string
}

const ringSize = 60

// MirrorStats aggregates the counters of one mirror run. All methods are
// safe for concurrent use; counters are lock-free.
type MirrorStats struct {
	counters       [numCounters]atomic.Int64
	completedFully atomic.Bool
	logFailures    atomic.Bool
	failedCopies   sync.Map // FailedOperation -> struct{}
	failedDeletes  sync.Map
	start          time.Time

	// Ring buffer, written only by the presenter's Tick.
	mu        sync.Mutex
	perSecond [ringSize]int64 // objects transferred per second
	ringIdx   int
	ringCount int
	lastDone  int64
}

// New creates a MirrorStats whose duration is measured from now. When
// logFailures is set, failed keys are recorded individually.
func New(logFailures bool) *MirrorStats {
	s := &MirrorStats{start: time.Now()}
	s.completedFully.Store(true)
	s.logFailures.Store(logFailures)
	return s
}

// Inc adds one to c.
func (s *MirrorStats) Inc(c Counter) { s.counters[c].Add(1) }

// Add adds n to c.
func (s *MirrorStats) Add(c Counter, n int64) { s.counters[c].Add(n) }

// Get returns the current value of c.
func (s *MirrorStats) Get(c Counter) int64 { return s.counters[c].Load() }

// MarkIncomplete clears the completed-fully flag.
func (s *MirrorStats) MarkIncomplete() { s.completedFully.Store(false) }

// CompletedFully reports whether no failure has been recorded.
func (s *MirrorStats) CompletedFully() bool { return s.completedFully.Load() }

// LogFailures reports whether failure details are collected.
func (s *MirrorStats) LogFailures() bool { return s.logFailures.Load() }

// AddErroredCopy counts a failed copy and, when failure logging is enabled,
// remembers its keys.
func (s *MirrorStats) AddErroredCopy(op Keyed) {
	s.counters[CopyErrors].Add(1)
	s.MarkIncomplete()
	if s.logFailures.Load() {
		s.failedCopies.Store(FailedOperation{Source: op.Source(), Destination: op.Destination()}, struct{}{})
	}
}

// AddErroredDelete counts a failed delete and, when failure logging is
// enabled, remembers its keys.
func (s *MirrorStats) AddErroredDelete(op Keyed) {
	s.counters[DeleteErrors].Add(1)
	s.MarkIncomplete()
	if s.logFailures.Load() {
		s.failedDeletes.Store(FailedOperation{Source: op.Source(), Destination: op.Destination()}, struct{}{})
	}
}

// FailedCopies returns the recorded failed copies sorted by source key.
func (s *MirrorStats) FailedCopies() []FailedOperation { return sortedOps(&s.failedCopies) }

// FailedDeletes returns the recorded failed deletes sorted by source key.
func (s *MirrorStats) FailedDeletes() []FailedOperation { return sortedOps(&s.failedDeletes) }

func sortedOps(m *sync.Map) []FailedOperation {
	var ops []FailedOperation
	m.Range(func(k, _ any) bool {
		ops = append(ops, k.(FailedOperation)) //nolint:forcetypeassert // only FailedOperation keys are stored
		return true
	})
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Source != ops[j].Source {
			return ops[i].Source < ops[j].Source
		}
		return ops[i].Destination < ops[j].Destination
	})
	return ops
}

// Start returns when the run began.
func (s *MirrorStats) Start() time.Time { return s.start }

// Duration returns the wall-clock time since the run began.
func (s *MirrorStats) Duration() time.Duration { return time.Since(s.start) }

// Snapshot returns an independent point-in-time copy. Each counter is read
// atomically; counters are not read under a common lock, so a snapshot
// taken mid-run may see one counter slightly ahead of another.
func (s *MirrorStats) Snapshot() Snapshot {
	snap := Snapshot{
		Start:          s.start,
		Elapsed:        s.Duration(),
		CompletedFully: s.completedFully.Load(),
		FailedCopies:   s.FailedCopies(),
		FailedDeletes:  s.FailedDeletes(),
	}
	for i := range snap.Counters {
		snap.Counters[i] = s.counters[i].Load()
	}
	return snap
}

// String renders the current report.
func (s *MirrorStats) String() string { return s.Snapshot().String() }

// AsMap renders the current counters keyed by name.
func (s *MirrorStats) AsMap() map[string]string { return s.Snapshot().AsMap() }

// Tick samples the number of transferred objects into the ring buffer.
// Called once per second by the presenter.
func (s *MirrorStats) Tick() {
	done := s.Get(ObjectsCopied) + s.Get(ObjectsPut)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.perSecond[s.ringIdx] = done - s.lastDone
	s.lastDone = done
	s.ringIdx = (s.ringIdx + 1) % ringSize
	if s.ringCount < ringSize {
		s.ringCount++
	}
}

// RollingRate returns the average objects transferred per second over the
// last n samples.
func (s *MirrorStats) RollingRate(n int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := min(n, s.ringCount)
	if count <= 0 {
		return 0
	}
	var sum int64
	for i := range count {
		sum += s.perSecond[(s.ringIdx-1-i+ringSize)%ringSize]
	}
	return float64(sum) / float64(count)
}

// RateHistory returns up to n per-second samples, oldest first.
func (s *MirrorStats) RateHistory(n int) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := min(n, s.ringCount)
	out := make([]float64, count)
	for i := range count {
		out[count-1-i] = float64(s.perSecond[(s.ringIdx-1-i+ringSize)%ringSize])
	}
	return out
}
