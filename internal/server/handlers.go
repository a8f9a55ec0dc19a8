package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bamsammich/s3mirror/internal/stats"
)

type liveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Runs      int64  `json:"runs"`
}

type statsResponse struct {
	Start          time.Time               `json:"start"`
	ElapsedSeconds float64                 `json:"elapsedSeconds"`
	CompletedFully bool                    `json:"completedFully"`
	Outstanding    int64                   `json:"outstanding"`
	Counters       map[string]int64        `json:"counters"`
	FailedCopies   []stats.FailedOperation `json:"failedCopies,omitempty"`
	FailedDeletes  []stats.FailedOperation `json:"failedDeletes,omitempty"`
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, liveResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Runs:      s.runs.Load(),
	})
}

// handleStats returns the tracked run's snapshot, or 503 before any run
// has started.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	t := s.current.Load()
	if t == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "no run yet"})
		return
	}

	snap := t.run.Stats().Snapshot()
	counters := make(map[string]int64, len(snap.Counters))
	for _, c := range stats.Counters() {
		counters[c.String()] = snap.Get(c)
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Start:          snap.Start,
		ElapsedSeconds: snap.Elapsed.Seconds(),
		CompletedFully: snap.CompletedFully,
		Outstanding:    t.run.Outstanding(),
		Counters:       counters,
		FailedCopies:   snap.FailedCopies,
		FailedDeletes:  snap.FailedDeletes,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
