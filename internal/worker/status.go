// Package worker is the reconciliation control loop and its file-based IPC:
// a command/status file written by both sides, a supervisor pid file, and
// the rolling current-delta file monitor modes publish for the UI.
package worker

import (
	"syscall"
	"time"

	"mirra/internal/logger"
	"mirra/internal/pkg/jsonutil"
	"mirra/internal/types"
)

// Command is the supervisor's instruction to the loop.
type Command string

const (
	CommandStart Command = "start"
	CommandStop  Command = "stop"
	CommandApply Command = "apply"
)

const (
	// HeartbeatEvery is how often the loop refreshes its heartbeat.
	HeartbeatEvery = 30 * time.Second
	// HeartbeatStaleAfter is the age past which a consumer treats the loop
	// as dead.
	HeartbeatStaleAfter = 120 * time.Second
)

// Status is the shared command/status record. The supervisor writes
// Command; the loop owns everything else.
type Status struct {
	Command         Command    `json:"command"`
	Running         bool       `json:"running"`
	PID             int        `json:"pid,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	LastHeartbeat   *time.Time `json:"last_heartbeat,omitempty"`
	LastSync        *time.Time `json:"last_sync,omitempty"`
	LastSyncResult  string     `json:"last_sync_result,omitempty"`
	IntervalSeconds int        `json:"interval_seconds,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// HeartbeatStale reports whether the heartbeat is older than the staleness
// window. A missing heartbeat counts as stale.
func (s Status) HeartbeatStale(now time.Time) bool {
	if s.LastHeartbeat == nil {
		return true
	}
	return now.Sub(*s.LastHeartbeat) > HeartbeatStaleAfter
}

// Alive reports whether the recorded loop process still exists and has a
// fresh heartbeat.
func (s Status) Alive(now time.Time) bool {
	return s.Running && s.PID > 0 && processAlive(s.PID) && !s.HeartbeatStale(now)
}

// processAlive probes a pid with signal 0. EPERM still means the process
// exists.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

// StatusFile is the atomically replaced JSON status record on disk.
type StatusFile struct {
	path string
}

func NewStatusFile(path string) *StatusFile {
	return &StatusFile{path: path}
}

func (f *StatusFile) Path() string { return f.path }

// Load reads the current status. A missing or corrupt file degrades to a
// stopped default rather than failing.
func (f *StatusFile) Load() Status {
	st := Status{Command: CommandStop}
	jsonutil.LoadOr(f.path, &st)
	if st.Command == "" {
		st.Command = CommandStop
	}
	return st
}

func (f *StatusFile) Save(st Status) error {
	return jsonutil.Save(f.path, st)
}

// Mutate applies fn to the loaded status and writes the result back.
func (f *StatusFile) Mutate(fn func(*Status)) error {
	st := f.Load()
	fn(&st)
	return f.Save(st)
}

// CleanupStale resets a status record left behind by a dead loop so a fresh
// one can start. Returns true when something was repaired.
func (f *StatusFile) CleanupStale() bool {
	st := f.Load()
	if !st.Running {
		return false
	}
	if st.PID > 0 && processAlive(st.PID) && !st.HeartbeatStale(time.Now()) {
		return false
	}
	logger.Warnf("worker: stale status record (pid=%d), resetting", st.PID)
	st.Running = false
	st.Command = CommandStop
	st.PID = 0
	st.Error = "previous worker died without cleanup"
	if err := f.Save(st); err != nil {
		logger.Errorf("worker: stale status reset failed: %v", err)
	}
	return true
}

// SupervisorFile records the pid of the supervising process. The loop
// force-stops when that process is gone.
type SupervisorFile struct {
	path string
}

func NewSupervisorFile(path string) *SupervisorFile {
	return &SupervisorFile{path: path}
}

type supervisorRecord struct {
	PID       int       `json:"pid"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (f *SupervisorFile) Save(pid int) error {
	return jsonutil.Save(f.path, supervisorRecord{PID: pid, UpdatedAt: time.Now()})
}

// PID returns the recorded supervisor pid, or 0 when no record exists.
func (f *SupervisorFile) PID() int {
	var rec supervisorRecord
	if !jsonutil.LoadOr(f.path, &rec) {
		return 0
	}
	return rec.PID
}

// Gone reports whether a supervisor was recorded and its process no longer
// exists. No record at all means the loop runs unsupervised on purpose.
func (f *SupervisorFile) Gone() bool {
	pid := f.PID()
	return pid > 0 && !processAlive(pid)
}

// CurrentDeltaFile is the rolling monitor-mode delta record, keyed by
// client id and fully overwritten each tick.
type CurrentDeltaFile struct {
	path string
}

func NewCurrentDeltaFile(path string) *CurrentDeltaFile {
	return &CurrentDeltaFile{path: path}
}

func (f *CurrentDeltaFile) Path() string { return f.path }

func (f *CurrentDeltaFile) Load() map[string]types.ClientDelta {
	out := map[string]types.ClientDelta{}
	jsonutil.LoadOr(f.path, &out)
	return out
}

func (f *CurrentDeltaFile) Save(byClient map[string]types.ClientDelta) error {
	return jsonutil.Save(f.path, byClient)
}

// Clear resets the record to empty so consumers see "no pending delta".
func (f *CurrentDeltaFile) Clear() error {
	return jsonutil.Save(f.path, map[string]types.ClientDelta{})
}
