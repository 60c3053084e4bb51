// Package status holds the process-wide live view of the current build.
package status

import "sync"

// LogTail is the number of log lines kept in the live view. The durable
// record keeps the full log; this bound only applies to status queries.
const LogTail = 100

// Snapshot is a point-in-time copy of the live build status.
type Snapshot struct {
	Active   bool     `json:"active"`
	Stage    string   `json:"stage"`
	Progress int      `json:"progress"`
	ETA      string   `json:"eta"`
	Logs     []string `json:"logs"`
	BuildID  string   `json:"build_id,omitempty"`
}

// Tracker is the mutex-guarded singleton build status. The active pipeline
// is the only writer; status and log queries are concurrent readers.
type Tracker struct {
	mu       sync.RWMutex
	active   bool
	stage    string
	progress int
	eta      string
	logs     []string
	buildID  string
}

// NewTracker returns a tracker in the inactive state.
func NewTracker() *Tracker {
	return &Tracker{}
}

// TryActivate atomically claims the single build slot. It returns false if a
// build is already active, in which case no state changes. On success the
// tracker is reset to stage "Initializing" at progress 0 with empty logs.
func (t *Tracker) TryActivate() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active {
		return false
	}
	t.active = true
	t.stage = "Initializing"
	t.progress = 0
	t.eta = ""
	t.logs = nil
	t.buildID = ""
	return true
}

// SetBuildID attaches the durable record id once it is known. The slot is
// claimed before the record exists, so activation and id assignment are two
// steps under the same writer.
func (t *Tracker) SetBuildID(buildID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buildID = buildID
}

// SetStage updates the human-readable stage label and progress value.
func (t *Tracker) SetStage(stage string, progress int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stage = stage
	t.progress = progress
}

// SetProgress updates the progress value only. Used by the compile stage's
// line-level progress estimation.
func (t *Tracker) SetProgress(progress int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress = progress
}

// AppendLog appends a line to the bounded live log, evicting the oldest
// lines beyond LogTail. Ordering within the retained window is preserved.
func (t *Tracker) AppendLog(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logs = append(t.logs, line)
	if len(t.logs) > LogTail {
		t.logs = t.logs[len(t.logs)-LogTail:]
	}
}

// Deactivate clears the active flag. Stage, progress, and logs are left in
// place so the last build's terminal state remains visible to pollers.
func (t *Tracker) Deactivate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = false
}

// Snapshot returns a copy of the current status. The returned log slice is
// owned by the caller.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	logs := make([]string, len(t.logs))
	copy(logs, t.logs)
	return Snapshot{
		Active:   t.active,
		Stage:    t.stage,
		Progress: t.progress,
		ETA:      t.eta,
		Logs:     logs,
		BuildID:  t.buildID,
	}
}

// Logs returns a copy of the bounded live log in chronological order.
func (t *Tracker) Logs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	logs := make([]string, len(t.logs))
	copy(logs, t.logs)
	return logs
}
