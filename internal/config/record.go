package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// recordPathOverride allows tests to redirect the run record path.
var recordPathOverride string //nolint:gochecknoglobals // test hook

// SetRecordPathOverride sets a test override for the run record path.
// Pass "" to restore the default.
func SetRecordPathOverride(path string) {
	recordPathOverride = path
}

// RunRecord summarizes the most recent mirror run. Scheduled runs rewrite it
// after every pass so operators can see when the mirror last converged.
type RunRecord struct {
	RunID          string           `toml:"run_id"`
	Source         string           `toml:"source"`
	Destination    string           `toml:"destination"`
	Started        time.Time        `toml:"started"`
	Finished       time.Time        `toml:"finished"`
	CompletedFully bool             `toml:"completed_fully"`
	Error          string           `toml:"error,omitempty"`
	Counters       map[string]int64 `toml:"counters"`
}

// RecordPath returns the path of the last-run record under
// $XDG_STATE_HOME/s3mirror.
func RecordPath() string {
	if recordPathOverride != "" {
		return recordPathOverride
	}
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(dir, "s3mirror", "last-run.toml")
}

// WriteRunRecord replaces the run record. Creates the parent directory if
// needed.
func WriteRunRecord(r RunRecord) error {
	path := RecordPath()
	if path == "" {
		return errors.New("no state directory")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(r); err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write run record: %w", err)
	}
	return os.Rename(tmp, path)
}

// ReadRunRecord reads the run record. Returns os.ErrNotExist if no run has
// been recorded.
func ReadRunRecord() (RunRecord, error) {
	var r RunRecord
	_, err := toml.DecodeFile(RecordPath(), &r)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return RunRecord{}, os.ErrNotExist
		}
		return RunRecord{}, err
	}
	return r, nil
}
