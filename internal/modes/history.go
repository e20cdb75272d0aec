package modes

import (
	"fmt"
	"path/filepath"
	"sync"

	"mirra/internal/pkg/jsonutil"
	"mirra/internal/types"
)

// dryHistoryCap bounds the simulation history so the file stays small.
const dryHistoryCap = 50

// History is the append-only per-client sync-result log, one JSON file per
// client. Simulation passes land in a separate "dry" file with a cap.
type History struct {
	dir string
	mu  sync.Mutex
}

func NewHistory(dir string) *History {
	return &History{dir: dir}
}

func (h *History) path(clientID string, dry bool) string {
	if dry {
		return filepath.Join(h.dir, fmt.Sprintf("%s_history_dry.json", clientID))
	}
	return filepath.Join(h.dir, fmt.Sprintf("%s_history.json", clientID))
}

func isDryMode(mode string) bool {
	return mode == types.ModeSimulation || mode == types.ModeMonitorSimulation
}

// Append adds one result to the client's history file.
func (h *History) Append(clientID string, res types.SyncResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	dry := isDryMode(res.Mode)
	path := h.path(clientID, dry)
	var entries []types.SyncResult
	jsonutil.LoadOr(path, &entries)
	entries = append(entries, res)
	if dry && len(entries) > dryHistoryCap {
		entries = entries[len(entries)-dryHistoryCap:]
	}
	return jsonutil.Save(path, entries)
}

// Tail returns the newest n entries for a client, newest last.
func (h *History) Tail(clientID string, dry bool, n int) []types.SyncResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	var entries []types.SyncResult
	jsonutil.LoadOr(h.path(clientID, dry), &entries)
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries
}
