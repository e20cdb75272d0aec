package retry

import (
	"fmt"
	"sync"
)

// consecutiveLimit is how many back-to-back failures trip the stop gate.
const consecutiveLimit = 3

// Tracker accumulates classified errors for one session. It is a simple
// trip-once breaker gated on severity and consecutive failures, not a
// sliding window.
type Tracker struct {
	mu          sync.Mutex
	total       int
	consecutive int
	critical    bool
	byType      map[ErrorType]int
	last        *ClassifiedError
}

func NewTracker() *Tracker {
	return &Tracker{byType: make(map[ErrorType]int)}
}

// RecordError counts an error; a critical severity latches the critical
// flag for the rest of the session.
func (t *Tracker) RecordError(err *ClassifiedError) {
	if t == nil || err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total++
	t.consecutive++
	t.byType[err.Type]++
	t.last = err
	if err.Severity == SeverityCritical {
		t.critical = true
	}
}

// RecordSuccess resets the consecutive counter. The critical flag stays.
func (t *Tracker) RecordSuccess() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.consecutive = 0
	t.mu.Unlock()
}

func (t *Tracker) Consecutive() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consecutive
}

func (t *Tracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// IsCritical reports whether any critical error was seen this session.
func (t *Tracker) IsCritical() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.critical
}

// ShouldStop reports whether order placement must halt: only when the
// stop-on-critical policy is enabled, and either a critical error was seen
// or too many failures landed in a row.
func (t *Tracker) ShouldStop(stopOnCritical bool) bool {
	if t == nil || !stopOnCritical {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.critical || t.consecutive >= consecutiveLimit
}

// Reset clears all counters for a fresh session.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = 0
	t.consecutive = 0
	t.critical = false
	t.byType = make(map[ErrorType]int)
	t.last = nil
}

// Summary renders a short per-type breakdown for logs.
func (t *Tracker) Summary() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.total == 0 {
		return "no errors"
	}
	out := fmt.Sprintf("%d errors (%d consecutive)", t.total, t.consecutive)
	for typ, n := range t.byType {
		out += fmt.Sprintf(" %s=%d", typ, n)
	}
	return out
}
