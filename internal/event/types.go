package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "job.sent", "session.ready")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeJobEnqueued       = "job.enqueued"
	TypeJobSent           = "job.sent"
	TypeJobDeliveryFailed = "job.delivery_failed"
	TypeJobDropped        = "job.dropped"
	TypeJobResolved       = "job.resolved"
	TypeTransportOpened   = "transport.opened"
	TypeTransportClosed   = "transport.closed"
	TypeSessionReady      = "session.ready"
	TypeSessionCrashed    = "session.crashed"
	TypeSessionStopped    = "session.stopped"
	TypeSessionRestarting = "session.restarting"
	TypeWorkspaceChanged  = "workspace.changed"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Job Events
// -----------------------------------------------------------------------------

// JobEnqueuedEvent is emitted when a job is accepted into a lane.
type JobEnqueuedEvent struct {
	baseEvent
	JobID string
	Kind  string
	Lane  string
}

// NewJobEnqueuedEvent creates a JobEnqueuedEvent.
func NewJobEnqueuedEvent(jobID, kind, lane string) JobEnqueuedEvent {
	return JobEnqueuedEvent{
		baseEvent: newBaseEvent(TypeJobEnqueued),
		JobID:     jobID,
		Kind:      kind,
		Lane:      lane,
	}
}

// JobSentEvent is emitted once the transport accepted a job's bytes.
type JobSentEvent struct {
	baseEvent
	JobID string
	Kind  string
}

// NewJobSentEvent creates a JobSentEvent.
func NewJobSentEvent(jobID, kind string) JobSentEvent {
	return JobSentEvent{
		baseEvent: newBaseEvent(TypeJobSent),
		JobID:     jobID,
		Kind:      kind,
	}
}

// JobDeliveryFailedEvent is emitted when every send attempt for a job failed.
// The job stays registered and will not resolve on its own.
type JobDeliveryFailedEvent struct {
	baseEvent
	JobID string
	Kind  string
	Error string
}

// NewJobDeliveryFailedEvent creates a JobDeliveryFailedEvent.
func NewJobDeliveryFailedEvent(jobID, kind, errMsg string) JobDeliveryFailedEvent {
	return JobDeliveryFailedEvent{
		baseEvent: newBaseEvent(TypeJobDeliveryFailed),
		JobID:     jobID,
		Kind:      kind,
		Error:     errMsg,
	}
}

// JobDroppedEvent is emitted when a job is discarded before sending,
// e.g. because its source file vanished.
type JobDroppedEvent struct {
	baseEvent
	JobID  string
	Kind   string
	Reason string
}

// NewJobDroppedEvent creates a JobDroppedEvent.
func NewJobDroppedEvent(jobID, kind, reason string) JobDroppedEvent {
	return JobDroppedEvent{
		baseEvent: newBaseEvent(TypeJobDropped),
		JobID:     jobID,
		Kind:      kind,
		Reason:    reason,
	}
}

// JobResolvedEvent is emitted when a reply is matched to a registered callback.
type JobResolvedEvent struct {
	baseEvent
	JobID   string
	Success bool
}

// NewJobResolvedEvent creates a JobResolvedEvent.
func NewJobResolvedEvent(jobID string, success bool) JobResolvedEvent {
	return JobResolvedEvent{
		baseEvent: newBaseEvent(TypeJobResolved),
		JobID:     jobID,
		Success:   success,
	}
}

// -----------------------------------------------------------------------------
// Transport Events
// -----------------------------------------------------------------------------

// TransportOpenedEvent is emitted when the socket to the compiler opens.
type TransportOpenedEvent struct {
	baseEvent
	Address string
}

// NewTransportOpenedEvent creates a TransportOpenedEvent.
func NewTransportOpenedEvent(address string) TransportOpenedEvent {
	return TransportOpenedEvent{
		baseEvent: newBaseEvent(TypeTransportOpened),
		Address:   address,
	}
}

// TransportClosedEvent is emitted when the socket closes or a dial fails.
type TransportClosedEvent struct {
	baseEvent
	Address string
	Error   string // empty on a clean close
}

// NewTransportClosedEvent creates a TransportClosedEvent.
func NewTransportClosedEvent(address, errMsg string) TransportClosedEvent {
	return TransportClosedEvent{
		baseEvent: newBaseEvent(TypeTransportClosed),
		Address:   address,
		Error:     errMsg,
	}
}

// -----------------------------------------------------------------------------
// Session Events
// -----------------------------------------------------------------------------

// SessionReadyEvent is emitted once per session when the transport is usable.
type SessionReadyEvent struct {
	baseEvent
	SessionID string
	Address   string
}

// NewSessionReadyEvent creates a SessionReadyEvent.
func NewSessionReadyEvent(sessionID, address string) SessionReadyEvent {
	return SessionReadyEvent{
		baseEvent: newBaseEvent(TypeSessionReady),
		SessionID: sessionID,
		Address:   address,
	}
}

// SessionCrashedEvent is emitted when the compiler exits unexpectedly or
// reports a failure on stderr.
type SessionCrashedEvent struct {
	baseEvent
	SessionID string
	Reason    string
}

// NewSessionCrashedEvent creates a SessionCrashedEvent.
func NewSessionCrashedEvent(sessionID, reason string) SessionCrashedEvent {
	return SessionCrashedEvent{
		baseEvent: newBaseEvent(TypeSessionCrashed),
		SessionID: sessionID,
		Reason:    reason,
	}
}

// SessionStoppedEvent is emitted after a session has been torn down.
type SessionStoppedEvent struct {
	baseEvent
	SessionID string
	Rejected  int // pending callbacks rejected during teardown
}

// NewSessionStoppedEvent creates a SessionStoppedEvent.
func NewSessionStoppedEvent(sessionID string, rejected int) SessionStoppedEvent {
	return SessionStoppedEvent{
		baseEvent: newBaseEvent(TypeSessionStopped),
		SessionID: sessionID,
		Rejected:  rejected,
	}
}

// SessionRestartingEvent is emitted before the supervisor restarts a crashed session.
type SessionRestartingEvent struct {
	baseEvent
	Attempt int
	Backoff time.Duration
	Reason  string
}

// NewSessionRestartingEvent creates a SessionRestartingEvent.
func NewSessionRestartingEvent(attempt int, backoff time.Duration, reason string) SessionRestartingEvent {
	return SessionRestartingEvent{
		baseEvent: newBaseEvent(TypeSessionRestarting),
		Attempt:   attempt,
		Backoff:   backoff,
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// Workspace Events
// -----------------------------------------------------------------------------

// WorkspaceChangedEvent is emitted by the watcher for each relevant file change.
type WorkspaceChangedEvent struct {
	baseEvent
	URI     string
	Removed bool
}

// NewWorkspaceChangedEvent creates a WorkspaceChangedEvent.
func NewWorkspaceChangedEvent(uri string, removed bool) WorkspaceChangedEvent {
	return WorkspaceChangedEvent{
		baseEvent: newBaseEvent(TypeWorkspaceChanged),
		URI:       uri,
		Removed:   removed,
	}
}
