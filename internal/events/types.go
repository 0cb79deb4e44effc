package events

import (
	"time"
)

// Event is the base interface for all workflow events.
type Event interface {
	EventType() string
	Subject() string
}

// Topic constants
const (
	TopicUnit   = "unit"   // Per work item / document progress
	TopicRun    = "run"    // Whole-run lifecycle
	TopicNotify = "notify" // User-facing notifications (toast sink)
)

// Event type constants
const (
	EventTypeUnitStarted   = "unit.started"
	EventTypeUnitCompleted = "unit.completed"
	EventTypeUnitFailed    = "unit.failed"
	EventTypeStageChanged  = "run.stage"
	EventTypeRunCompleted  = "run.completed"
	EventTypeRunStalled    = "run.stalled"
	EventTypeNotification  = "notify.message"
)

// Level classifies a notification for the rendering sink.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// UnitStartedEvent is published when a work item or document begins processing.
type UnitStartedEvent struct {
	ID        string
	Name      string
	Timestamp time.Time
}

func (e UnitStartedEvent) EventType() string { return EventTypeUnitStarted }
func (e UnitStartedEvent) Subject() string   { return e.ID }

// UnitCompletedEvent is published when a unit completes successfully.
type UnitCompletedEvent struct {
	ID        string
	Name      string
	Version   int // Version of the output that was appended
	Duration  time.Duration
	Timestamp time.Time
}

func (e UnitCompletedEvent) EventType() string { return EventTypeUnitCompleted }
func (e UnitCompletedEvent) Subject() string   { return e.ID }

// UnitFailedEvent is published when a unit fails.
type UnitFailedEvent struct {
	ID        string
	Name      string
	Err       error
	Feedback  string // QA feedback when the failure is a rejection
	Timestamp time.Time
}

func (e UnitFailedEvent) EventType() string { return EventTypeUnitFailed }
func (e UnitFailedEvent) Subject() string   { return e.ID }

// StageChangedEvent is published when an agent pipeline transitions between
// stages (orchestrating, doing, validating).
type StageChangedEvent struct {
	RunID     string
	Stage     string
	Detail    string
	Timestamp time.Time
}

func (e StageChangedEvent) EventType() string { return EventTypeStageChanged }
func (e StageChangedEvent) Subject() string   { return e.RunID }

// RunCompletedEvent is published when a scheduler or pipeline run finishes.
type RunCompletedEvent struct {
	RunID     string
	Completed int
	Failed    int
	Timestamp time.Time
}

func (e RunCompletedEvent) EventType() string { return EventTypeRunCompleted }
func (e RunCompletedEvent) Subject() string   { return e.RunID }

// RunStalledEvent is published when the dependency scheduler cannot make
// further progress.
type RunStalledEvent struct {
	RunID     string
	Stuck     []string // Item IDs that can no longer proceed
	Timestamp time.Time
}

func (e RunStalledEvent) EventType() string { return EventTypeRunStalled }
func (e RunStalledEvent) Subject() string   { return e.RunID }

// NotificationEvent is a user-facing progress message. Fire-and-forget: the
// bus never blocks a workflow on a slow consumer.
type NotificationEvent struct {
	Message   string
	Level     Level
	Timestamp time.Time
}

func (e NotificationEvent) EventType() string { return EventTypeNotification }
func (e NotificationEvent) Subject() string   { return "" }
