package a2a

import "time"

// TaskState is one of the six lifecycle states a task may occupy.
// The zero value is the empty string and is never a valid state on
// the wire; every task is created directly into TaskStateSubmitted.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "SUBMITTED"
	TaskStateWorking       TaskState = "WORKING"
	TaskStateInputRequired TaskState = "INPUT_REQUIRED"
	TaskStateCompleted     TaskState = "COMPLETED"
	TaskStateFailed        TaskState = "FAILED"
	TaskStateCanceled      TaskState = "CANCELED"
)

// IsTerminal reports whether a state is absorbing: COMPLETED, FAILED,
// or CANCELED.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	default:
		return false
	}
}

// Task is the full wire representation of a task, as returned by
// tasks/get: its identity, current status, conversation history, and
// any artifacts produced so far.
type Task struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionId,omitempty"`
	Status    TaskStatus `json:"status"`
	History   []Message  `json:"history,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// TaskStatus is the state plus the bookkeeping timestamps and optional
// human-readable message that accompanies a transition.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EventType discriminates the three SSE payload variants plus the
// stream-local error frame.
type EventType string

const (
	EventTypeStatus   EventType = "task_status"
	EventTypeMessage  EventType = "task_message"
	EventTypeArtifact EventType = "task_artifact"
	EventTypeError    EventType = "error"
)

// StatusUpdateEvent announces a task's transition to a new state.
type StatusUpdateEvent struct {
	TaskID    string    `json:"taskId"`
	State     TaskState `json:"state"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageEvent announces a new message appended to a task's history.
type MessageEvent struct {
	TaskID    string    `json:"taskId"`
	Message   Message   `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ArtifactUpdateEvent announces an artifact added or revised on a
// task.
type ArtifactUpdateEvent struct {
	TaskID    string    `json:"taskId"`
	Artifact  Artifact  `json:"artifact"`
	Timestamp time.Time `json:"timestamp"`
}

// StreamErrorEvent is the payload of a server-sent "error" frame: it
// signals the stream itself failed mid-flight, distinct from a task
// transitioning to FAILED.
type StreamErrorEvent struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// TaskSendParams is the params object for tasks/send: an optional
// existing task ID (absent initiates a new task) plus the message to
// append.
type TaskSendParams struct {
	ID      string  `json:"id,omitempty"`
	Message Message `json:"message"`
}

// TaskIDParams is the params object shared by tasks/get, tasks/cancel,
// and tasks/sendSubscribe.
type TaskIDParams struct {
	ID string `json:"id"`
}
