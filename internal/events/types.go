package events

import "time"

// Event is the base interface for all events. Topic reports which topic
// the event belongs on; the Bus derives routing from it directly instead
// of trusting a publisher-supplied topic string that could drift out of
// sync with the event's own type.
type Event interface {
	EventType() string
	TaskID() string
	Topic() string
}

// Topic constants.
const (
	TopicTask      = "task"
	TopicSchedule  = "schedule"
	TopicIntake    = "intake"
	TopicRetention = "retention"
)

// Event type constants.
const (
	EventTypeClaimed    = "task.claimed"
	EventTypeCompleted  = "task.completed"
	EventTypeFailed     = "task.failed"
	EventTypeBlocked    = "task.blocked"
	EventTypeAbandoned  = "task.abandoned"
	EventTypeReclaimed  = "task.reclaimed"
	EventTypeStopped    = "schedule.stopped"
	EventTypePaused     = "schedule.paused"
	EventTypeResumed    = "schedule.resumed"
	EventTypeIntakeDone = "intake.done"
	EventTypeRetention  = "retention.swept"
)

// ClaimedEvent is published when a task transitions pending -> in_progress.
type ClaimedEvent struct {
	ID        string
	RunID     string
	Attempt   int
	Timestamp time.Time
}

func (e ClaimedEvent) EventType() string { return EventTypeClaimed }
func (e ClaimedEvent) TaskID() string    { return e.ID }
func (e ClaimedEvent) Topic() string     { return TopicTask }

// CompletedEvent is published when a task transitions in_progress -> completed.
type CompletedEvent struct {
	ID        string
	RunID     string
	Summary   string
	Duration  time.Duration
	Timestamp time.Time
}

func (e CompletedEvent) EventType() string { return EventTypeCompleted }
func (e CompletedEvent) TaskID() string    { return e.ID }
func (e CompletedEvent) Topic() string     { return TopicTask }

// FailedEvent is published when a task transitions in_progress -> failed.
type FailedEvent struct {
	ID         string
	RunID      string
	Error      string
	CanRetry   bool
	NeedsHuman bool
	Timestamp  time.Time
}

func (e FailedEvent) EventType() string { return EventTypeFailed }
func (e FailedEvent) TaskID() string    { return e.ID }
func (e FailedEvent) Topic() string     { return TopicTask }

// BlockedEvent is published when a task transitions in_progress -> blocked.
type BlockedEvent struct {
	ID        string
	RunID     string
	Reason    string
	Timestamp time.Time
}

func (e BlockedEvent) EventType() string { return EventTypeBlocked }
func (e BlockedEvent) TaskID() string    { return e.ID }
func (e BlockedEvent) Topic() string     { return TopicTask }

// AbandonedEvent is published when a lease expires without a worker report.
type AbandonedEvent struct {
	ID        string
	RunID     string
	Timestamp time.Time
}

func (e AbandonedEvent) EventType() string { return EventTypeAbandoned }
func (e AbandonedEvent) TaskID() string    { return e.ID }
func (e AbandonedEvent) Topic() string     { return TopicTask }

// ReclaimedEvent is published when the Lease Manager's reclaim sweep
// returns an abandoned task to pending.
type ReclaimedEvent struct {
	ID        string
	OldRunID  string
	Timestamp time.Time
}

func (e ReclaimedEvent) EventType() string { return EventTypeReclaimed }
func (e ReclaimedEvent) TaskID() string    { return e.ID }
func (e ReclaimedEvent) Topic() string     { return TopicTask }

// ScheduleEvent carries the three supervisor-level cancellation signals
// (§5 "Cancellation"): STOP, PAUSE, and resume. TaskID is always empty;
// these are not per-task events.
type ScheduleEvent struct {
	Kind      string // one of EventTypeStopped, EventTypePaused, EventTypeResumed
	Reason    string
	Timestamp time.Time
}

func (e ScheduleEvent) EventType() string { return e.Kind }
func (e ScheduleEvent) TaskID() string    { return "" }
func (e ScheduleEvent) Topic() string     { return TopicSchedule }

// IntakeEvent is published once per requirement document processed,
// regardless of outcome.
type IntakeEvent struct {
	ReqID      string
	Status     string // completed, blocked, failed
	TasksAdded []string
	Timestamp  time.Time
}

func (e IntakeEvent) EventType() string { return EventTypeIntakeDone }
func (e IntakeEvent) TaskID() string    { return "" }
func (e IntakeEvent) Topic() string     { return TopicIntake }

// RetentionEvent is published once per Retention Manager sweep.
type RetentionEvent struct {
	Deleted    []string
	BytesFreed int64
	Timestamp  time.Time
}

func (e RetentionEvent) EventType() string { return EventTypeRetention }
func (e RetentionEvent) TaskID() string    { return "" }
func (e RetentionEvent) Topic() string     { return TopicRetention }
