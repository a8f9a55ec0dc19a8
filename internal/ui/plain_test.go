package ui

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/s3mirror/internal/event"
	"github.com/bamsammich/s3mirror/internal/stats"
)

type keyPair struct{ src, dst string }

func (k keyPair) Source() string      { return k.src }
func (k keyPair) Destination() string { return k.dst }

// lockedBuffer is a bytes.Buffer safe to read while a presenter writes.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func runPlain(t *testing.T, p *plainPresenter, evs ...event.Event) {
	t.Helper()
	events := make(chan event.Event, len(evs))
	for _, ev := range evs {
		events <- ev
	}
	close(events)
	require.NoError(t, p.Run(events))
}

func TestPlainPresenterTransfers(t *testing.T) {
	var out, errOut bytes.Buffer
	p := &plainPresenter{w: &out, errW: &errOut, stats: stats.New(false)}

	runPlain(t, p,
		event.Event{Type: event.KeyCopied, Key: "dir/file.txt", Destination: "mirror/dir/file.txt", Size: 1024},
		event.Event{Type: event.KeyUploaded, Key: "dir/big.bin", Destination: "dir/big.bin", Size: 100 << 20},
	)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "copy: dir/file.txt -> mirror/dir/file.txt  1.0 KB", lines[0])
	assert.Equal(t, "upload: dir/big.bin -> dir/big.bin  100.0 MB", lines[1])
}

func TestPlainPresenterFailures(t *testing.T) {
	var out, errOut bytes.Buffer
	p := &plainPresenter{w: &out, errW: &errOut, stats: stats.New(false)}

	runPlain(t, p,
		event.Event{Type: event.KeyFailed, Pass: event.PassCopy, Key: "fail.txt", Error: assert.AnError},
		event.Event{Type: event.DeleteFailed, Pass: event.PassDelete, Key: "gone.txt"},
		event.Event{Type: event.ListingFailed, Pass: event.PassCopy, Error: errors.New("access denied")},
	)

	assert.Contains(t, out.String(), "FAILED copy: fail.txt  "+assert.AnError.Error())
	assert.Contains(t, out.String(), "FAILED delete: gone.txt  error")
	assert.Contains(t, errOut.String(), "listing failed (copy pass): access denied")
}

func TestPlainPresenterSkippedOnlyWhenVerbose(t *testing.T) {
	var out bytes.Buffer
	p := &plainPresenter{w: &out, errW: &bytes.Buffer{}, stats: stats.New(false)}
	runPlain(t, p, event.Event{Type: event.KeySkipped, Key: "skip.txt"})
	assert.Empty(t, out.String())

	p.verbose = true
	runPlain(t, p, event.Event{Type: event.KeySkipped, Key: "skip.txt"})
	assert.Equal(t, "skip.txt  skipped\n", out.String())
}

func TestPlainPresenterDeleteRestoreDryRun(t *testing.T) {
	var out bytes.Buffer
	p := &plainPresenter{w: &out, errW: &bytes.Buffer{}, stats: stats.New(false)}

	runPlain(t, p,
		event.Event{Type: event.KeyDeleted, Key: "extra.txt", Destination: "extra.txt"},
		event.Event{Type: event.RestoreRequested, Key: "cold.bin"},
		event.Event{Type: event.DryRun, Pass: event.PassCopy, Key: "new.txt"},
		event.Event{Type: event.ListingPage, Size: 1000},
	)

	assert.Equal(t,
		"delete: extra.txt\nrestore requested: cold.bin\n(dry run) copy: new.txt\n",
		out.String())
}

func TestPlainPresenterPeriodicReport(t *testing.T) {
	var out bytes.Buffer
	var errOut lockedBuffer
	st := stats.New(false)
	st.Add(stats.ObjectsRead, 3)
	p := &plainPresenter{w: &out, errW: &errOut, stats: st, reportEvery: 20 * time.Millisecond}

	events := make(chan event.Event)
	done := make(chan error, 1)
	go func() { done <- p.Run(events) }()

	assert.Eventually(t, func() bool {
		return strings.Contains(errOut.String(), "STATS END")
	}, 2*time.Second, 10*time.Millisecond)
	close(events)
	require.NoError(t, <-done)
}

func TestProgressLine(t *testing.T) {
	st := stats.New(false)
	st.Add(stats.ObjectsRead, 1500)
	st.Add(stats.ObjectsCopied, 10)
	st.Add(stats.ObjectsPut, 5)
	st.Add(stats.ObjectsSkipped, 1485)
	st.AddErroredCopy(keyPair{"a", "b"})

	line := progressLine(st.Snapshot(), 2.5, 2, 4)
	assert.Contains(t, line, "read 1,500")
	assert.Contains(t, line, "copied 15")
	assert.Contains(t, line, "skipped 1,485")
	assert.Contains(t, line, "errors 1")
	assert.Contains(t, line, "2.50 obj/s")
	assert.True(t, strings.HasSuffix(line, "▪▪□□"))

	assert.NotContains(t, progressLine(st.Snapshot(), 0, 10, 64), "□")
}

func TestPlainPresenterSummary(t *testing.T) {
	st := stats.New(false)
	st.Add(stats.ObjectsRead, 100)
	st.Add(stats.ObjectsCopied, 100)
	st.Add(stats.BytesCopied, 1024*1024)

	p := &plainPresenter{stats: st}
	s := p.Summary()
	assert.Contains(t, s, "done ✓")
	assert.Contains(t, s, "copied 100")
	assert.Contains(t, s, "size 1.0 MB")
	assert.Contains(t, s, "errors 0")
	assert.NotContains(t, s, "deleted")

	st.Inc(stats.ObjectsDeleted)
	st.AddErroredDelete(keyPair{"x", "y"})
	s = p.Summary()
	assert.Contains(t, s, "done ✗")
	assert.Contains(t, s, "deleted 1")
	assert.Contains(t, s, "errors 1")
}

func TestNewPresenter(t *testing.T) {
	st := stats.New(false)
	q := NewPresenter(Config{Quiet: true, Stats: st})
	_, ok := q.(*quietPresenter)
	assert.True(t, ok)
	assert.Empty(t, q.Summary())

	p := NewPresenter(Config{Writer: &bytes.Buffer{}, ErrWriter: &bytes.Buffer{}, Stats: st, IsTTY: true})
	pp, ok := p.(*plainPresenter)
	require.True(t, ok)
	assert.True(t, pp.sparkline)
}

func TestQuietPresenterDrains(t *testing.T) {
	var errOut bytes.Buffer
	p := NewPresenter(Config{Quiet: true, Stats: stats.New(false), ErrWriter: &errOut})
	events := make(chan event.Event, 3)
	events <- event.Event{Type: event.KeyCopied, Key: "a"}
	events <- event.Event{Type: event.KeyFailed, Key: "b"}
	close(events)
	require.NoError(t, p.Run(events))
	assert.Empty(t, errOut.String())
}

func TestPlainPresenterRetries(t *testing.T) {
	var out, errOut bytes.Buffer
	p := &plainPresenter{w: &out, errW: &errOut, stats: stats.New(false)}

	runPlain(t, p,
		event.Event{Type: event.KeyStarted, Pass: event.PassCopy, Key: "flaky.bin", Attempt: 1},
		event.Event{Type: event.KeyStarted, Pass: event.PassCopy, Key: "flaky.bin", Attempt: 2},
		event.Event{Type: event.KeyStarted, Pass: event.PassDelete, Key: "old.bin", Attempt: 3},
	)

	assert.Empty(t, out.String())
	assert.Equal(t,
		"retry copy: flaky.bin (attempt 2)\nretry delete: old.bin (attempt 3)\n",
		errOut.String())
}
