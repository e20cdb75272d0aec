// Package deltatrack classifies changes between consecutive monitor-mode
// deltas and keeps a durable per-client change history.
package deltatrack

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"mirra/internal/logger"
	"mirra/internal/pkg/jsonutil"
)

// ChangeReason labels what happened between two delta snapshots.
type ChangeReason string

const (
	ReasonInitial         ChangeReason = "initial"
	ReasonNoChange        ChangeReason = "no_change"
	ReasonNewSymbol       ChangeReason = "new_symbol"
	ReasonSymbolRemoved   ChangeReason = "symbol_removed"
	ReasonQuantityChanged ChangeReason = "quantity_changed"
)

// Change is one symbol-level difference between two deltas.
type Change struct {
	Symbol string       `json:"symbol"`
	Old    int          `json:"old"`
	New    int          `json:"new"`
	Diff   int          `json:"diff"`
	Kind   ChangeReason `json:"type"`
}

// Compare diffs two delta maps. When several symbols differ for different
// reasons, the overall reason follows the priority new_symbol >
// symbol_removed > quantity_changed.
func Compare(last, next map[string]int) (bool, ChangeReason, []Change) {
	var changes []Change
	for _, sym := range sortedKeys(next) {
		nq := next[sym]
		oq, had := last[sym]
		switch {
		case !had:
			changes = append(changes, Change{Symbol: sym, New: nq, Diff: nq, Kind: ReasonNewSymbol})
		case oq != nq:
			changes = append(changes, Change{Symbol: sym, Old: oq, New: nq, Diff: nq - oq, Kind: ReasonQuantityChanged})
		}
	}
	for _, sym := range sortedKeys(last) {
		if _, still := next[sym]; !still {
			oq := last[sym]
			changes = append(changes, Change{Symbol: sym, Old: oq, Diff: -oq, Kind: ReasonSymbolRemoved})
		}
	}
	if len(changes) == 0 {
		return false, ReasonNoChange, nil
	}
	reason := ReasonQuantityChanged
	for _, c := range changes {
		if c.Kind == ReasonNewSymbol {
			reason = ReasonNewSymbol
			break
		}
		if c.Kind == ReasonSymbolRemoved {
			reason = ReasonSymbolRemoved
		}
	}
	return true, reason, changes
}

// historyEntry is one appended change record.
type historyEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Reason    ChangeReason   `json:"reason"`
	Changes   []Change       `json:"changes"`
	Deltas    map[string]int `json:"deltas"`
}

// Tracker remembers the last observed delta per client and appends every
// change to that client's history file.
type Tracker struct {
	dir       string
	retention time.Duration

	mu   sync.Mutex
	last map[string]map[string]int
	seen map[string]bool
}

// DefaultRetention is how long change history entries are kept.
const DefaultRetention = 365 * 24 * time.Hour

func NewTracker(dir string, retention time.Duration) *Tracker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Tracker{
		dir:       dir,
		retention: retention,
		last:      make(map[string]map[string]int),
		seen:      make(map[string]bool),
	}
}

// Observe records the client's latest delta. The first observation after
// startup seeds from the tail of the history file so a restart does not
// re-announce an unchanged delta. Returns whether the delta changed and why.
func (t *Tracker) Observe(clientID string, deltas map[string]int) (bool, ChangeReason, []Change) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.seen[clientID] {
		t.seen[clientID] = true
		if tail, ok := t.loadTail(clientID); ok {
			t.last[clientID] = tail
		} else {
			t.last[clientID] = nil
		}
	}
	last, had := t.last[clientID]
	if !had || last == nil {
		t.last[clientID] = copyDelta(deltas)
		t.append(clientID, historyEntry{
			Timestamp: time.Now(),
			Reason:    ReasonInitial,
			Deltas:    copyDelta(deltas),
		})
		return true, ReasonInitial, nil
	}

	changed, reason, changes := Compare(last, deltas)
	if !changed {
		return false, ReasonNoChange, nil
	}
	t.last[clientID] = copyDelta(deltas)
	t.append(clientID, historyEntry{
		Timestamp: time.Now(),
		Reason:    reason,
		Changes:   changes,
		Deltas:    copyDelta(deltas),
	})
	return true, reason, changes
}

// Forget drops the in-memory state for all clients (worker stop cleanup).
func (t *Tracker) Forget() {
	t.mu.Lock()
	t.last = make(map[string]map[string]int)
	t.seen = make(map[string]bool)
	t.mu.Unlock()
}

func (t *Tracker) historyPath(clientID string) string {
	return filepath.Join(t.dir, fmt.Sprintf("%s_history_delta.json", clientID))
}

func (t *Tracker) loadTail(clientID string) (map[string]int, bool) {
	var entries []historyEntry
	if !jsonutil.LoadOr(t.historyPath(clientID), &entries) || len(entries) == 0 {
		return nil, false
	}
	return entries[len(entries)-1].Deltas, true
}

func (t *Tracker) append(clientID string, entry historyEntry) {
	path := t.historyPath(clientID)
	var entries []historyEntry
	jsonutil.LoadOr(path, &entries)
	entries = append(entries, entry)

	cutoff := time.Now().Add(-t.retention)
	kept := entries[:0]
	for _, e := range entries {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	if err := jsonutil.Save(path, kept); err != nil {
		logger.Warnf("delta history write failed for %s: %v", clientID, err)
	}
}

func copyDelta(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
