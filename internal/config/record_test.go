package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/s3mirror/internal/config"
)

// setTestRecordPath overrides the record path for a test and restores it
// after the test completes.
func setTestRecordPath(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "state", "last-run.toml")
	config.SetRecordPathOverride(path)
	t.Cleanup(func() { config.SetRecordPathOverride("") })
	return path
}

func TestWriteRunRecord(t *testing.T) {
	path := setTestRecordPath(t, t.TempDir())

	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	err := config.WriteRunRecord(config.RunRecord{
		RunID:          "run-1",
		Source:         "s3://src/data",
		Destination:    "/backup",
		Started:        started,
		Finished:       started.Add(90 * time.Second),
		CompletedFully: true,
		Counters:       map[string]int64{"objectsCopied": 12},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `run_id = "run-1"`)
	assert.Contains(t, string(data), "completed_fully = true")
	assert.Contains(t, string(data), "objectsCopied = 12")
	assert.NotContains(t, string(data), "error")

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestReadRunRecord_RoundTrip(t *testing.T) {
	setTestRecordPath(t, t.TempDir())

	want := config.RunRecord{
		RunID:       "run-2",
		Source:      "s3://a",
		Destination: "s3://b",
		Started:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Finished:    time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC),
		Error:       "list a/: access denied",
		Counters:    map[string]int64{"copyErrors": 3, "objectsRead": 10},
	}
	require.NoError(t, config.WriteRunRecord(want))

	got, err := config.ReadRunRecord()
	require.NoError(t, err)
	assert.Equal(t, want.RunID, got.RunID)
	assert.Equal(t, want.Error, got.Error)
	assert.False(t, got.CompletedFully)
	assert.True(t, want.Started.Equal(got.Started))
	assert.Equal(t, want.Counters, got.Counters)
}

func TestReadRunRecord_Missing(t *testing.T) {
	setTestRecordPath(t, t.TempDir())

	_, err := config.ReadRunRecord()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRecordPath_XDGState(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/custom/state")
	assert.Equal(t, "/custom/state/s3mirror/last-run.toml", config.RecordPath())
}
