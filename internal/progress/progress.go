// Package progress carries advisory progress telemetry from long operations
// to whoever is watching (CLI output, server-sent events).
//
// Progress values are informational only. Completion of an operation is
// signaled by its return value, never by an event reaching 100%.
package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stage identifies the phase of the operation that emitted an event.
type Stage string

// Stages emitted by the audio core.
const (
	StageInitializing Stage = "initializing"
	StageProbing      Stage = "probing"
	StageSegmenting   Stage = "segmenting"
	StageUploading    Stage = "uploading"
	StageMerging      Stage = "merging"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "error"
)

// Level is the severity of a log entry attached to an event.
type Level string

// Log levels.
const (
	LevelInfo    Level = "info"
	LevelWarn    Level = "warning"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

// maxLogs caps the log entries carried by each event.
const maxLogs = 100

// LogEntry is a single human-readable line attached to an event.
type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
}

// Details carries optional counters for the current operation.
type Details struct {
	CurrentSegment int   `json:"currentSegment,omitempty"`
	TotalSegments  int   `json:"totalSegments,omitempty"`
	BytesProcessed int64 `json:"bytesProcessed,omitempty"`
	BytesTotal     int64 `json:"bytesTotal,omitempty"`
}

// Event is one progress update.
type Event struct {
	Stage       Stage   `json:"stage"`
	Percentage  float64 `json:"percentage"`
	CurrentTask string  `json:"currentTask"`
	// EstimatedTimeRemaining is in seconds; zero when unknown.
	EstimatedTimeRemaining float64    `json:"estimatedTimeRemaining"`
	Logs                   []LogEntry `json:"logs"`
	StartedAt              time.Time  `json:"startedAt"`
	ProcessingDetails      *Details   `json:"processingDetails,omitempty"`
}

// Func receives progress events. A nil Func discards them.
// Implementations must not block; the operation calling them will not wait.
type Func func(Event)

// Emit sends e to f if f is non-nil.
func (f Func) Emit(e Event) {
	if f != nil {
		f(e)
	}
}

// Tracker builds events for a single operation. It keeps the start time,
// the accumulated log and the current stage so callers only report deltas.
// Safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	sink      Func
	now       func() time.Time
	stage     Stage
	startedAt time.Time
	pct       float64
	task      string
	logs      []LogEntry
	details   *Details
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock sets the time source (for testing).
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a Tracker that emits into sink starting at stage.
func NewTracker(sink Func, stage Stage, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		sink:  sink,
		now:   time.Now,
		stage: stage,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.startedAt = t.now()
	return t
}

// Stage switches the current stage and emits.
func (t *Tracker) Stage(stage Stage, task string) {
	t.mu.Lock()
	t.stage = stage
	t.task = task
	e := t.snapshotLocked()
	t.mu.Unlock()
	t.sink.Emit(e)
}

// Update reports a new percentage and task description.
// Percentages are clamped to [0, 100] but may move backwards.
func (t *Tracker) Update(pct float64, task string) {
	t.mu.Lock()
	t.pct = clamp(pct)
	t.task = task
	e := t.snapshotLocked()
	t.mu.Unlock()
	t.sink.Emit(e)
}

// Details replaces the processing details and emits.
func (t *Tracker) Details(d Details) {
	t.mu.Lock()
	t.details = &d
	e := t.snapshotLocked()
	t.mu.Unlock()
	t.sink.Emit(e)
}

// Log appends a log entry and emits.
func (t *Tracker) Log(level Level, msg string) {
	t.mu.Lock()
	t.logs = append(t.logs, LogEntry{
		ID:        uuid.NewString(),
		Timestamp: t.now(),
		Level:     level,
		Message:   msg,
	})
	if len(t.logs) > maxLogs {
		t.logs = t.logs[len(t.logs)-maxLogs:]
	}
	e := t.snapshotLocked()
	t.mu.Unlock()
	t.sink.Emit(e)
}

// Complete marks the operation finished.
func (t *Tracker) Complete(task string) {
	t.mu.Lock()
	t.stage = StageCompleted
	t.pct = 100
	t.task = task
	e := t.snapshotLocked()
	t.mu.Unlock()
	t.sink.Emit(e)
}

// Fail marks the operation failed and logs err.
func (t *Tracker) Fail(err error) {
	t.mu.Lock()
	t.stage = StageFailed
	t.task = err.Error()
	t.logs = append(t.logs, LogEntry{
		ID:        uuid.NewString(),
		Timestamp: t.now(),
		Level:     LevelError,
		Message:   err.Error(),
	})
	if len(t.logs) > maxLogs {
		t.logs = t.logs[len(t.logs)-maxLogs:]
	}
	e := t.snapshotLocked()
	t.mu.Unlock()
	t.sink.Emit(e)
}

// snapshotLocked copies the current state into an Event. Caller holds t.mu.
func (t *Tracker) snapshotLocked() Event {
	logs := make([]LogEntry, len(t.logs))
	copy(logs, t.logs)

	var details *Details
	if t.details != nil {
		d := *t.details
		details = &d
	}

	return Event{
		Stage:                  t.stage,
		Percentage:             t.pct,
		CurrentTask:            t.task,
		EstimatedTimeRemaining: estimateRemaining(t.now().Sub(t.startedAt), t.pct),
		Logs:                   logs,
		StartedAt:              t.startedAt,
		ProcessingDetails:      details,
	}
}

// estimateRemaining extrapolates linearly from elapsed time and percentage.
// Returns seconds, or 0 when no estimate is possible.
func estimateRemaining(elapsed time.Duration, pct float64) float64 {
	if pct <= 0 || pct >= 100 || elapsed <= 0 {
		return 0
	}
	return elapsed.Seconds() * (100 - pct) / pct
}

func clamp(pct float64) float64 {
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}
