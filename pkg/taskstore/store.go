// Package taskstore implements the task state machine and the
// concurrent store that owns task contexts and their listener
// fan-out. It is the only mutable shared resource in the protocol
// core; every exported method is safe for concurrent use.
package taskstore

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/agentvault/agentvault-go/pkg/a2a"
)

// listenerQueueSize bounds each listener's event channel. When full,
// the store drops the oldest queued event to make room for the new
// one rather than blocking the emitting goroutine.
const listenerQueueSize = 32

// maxConsecutiveDrops is how many back-to-back drops a listener may
// accumulate before the store gives up on it and removes it from the
// fan-out set entirely.
const maxConsecutiveDrops = 8

// allowedTransitions is the full transition table from the task state
// machine. A state missing from the outer map, or a destination
// missing from its inner set, is an invalid transition. Every state
// implicitly allows a self-transition; self-transitions are handled
// separately because they do not emit an event.
var allowedTransitions = map[a2a.TaskState]map[a2a.TaskState]bool{
	a2a.TaskStateSubmitted: {
		a2a.TaskStateWorking:  true,
		a2a.TaskStateCanceled: true,
	},
	a2a.TaskStateWorking: {
		a2a.TaskStateInputRequired: true,
		a2a.TaskStateCompleted:     true,
		a2a.TaskStateFailed:        true,
		a2a.TaskStateCanceled:      true,
	},
	a2a.TaskStateInputRequired: {
		a2a.TaskStateWorking:  true,
		a2a.TaskStateCanceled: true,
	},
	a2a.TaskStateCompleted: {},
	a2a.TaskStateFailed:    {},
	a2a.TaskStateCanceled:  {},
}

// ErrInvalidTransition is returned by UpdateState when the requested
// transition is not in the allowed table.
type ErrInvalidTransition struct {
	From, To a2a.TaskState
}

func (e *ErrInvalidTransition) Error() string {
	return "invalid task transition from " + string(e.From) + " to " + string(e.To)
}

// ErrNotFound is returned when a task ID has no context in the store.
type ErrNotFound struct{ ID string }

func (e *ErrNotFound) Error() string { return "task not found: " + e.ID }

// Context is the per-task record the store owns. Fields are read
// under the store's lock; callers receive copies from Get to avoid
// data races on concurrent mutation.
type Context struct {
	ID        string
	State     a2a.TaskState
	CreatedAt time.Time
	UpdatedAt time.Time
	History   []a2a.Message
	Artifacts []a2a.Artifact
	Message   string // last status message, if any
}

// ToTask renders the wire-format Task for tasks/get.
func (c *Context) ToTask() *a2a.Task {
	return &a2a.Task{
		ID: c.ID,
		Status: a2a.TaskStatus{
			State:     c.State,
			Message:   c.Message,
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
		},
		History:   append([]a2a.Message(nil), c.History...),
		Artifacts: append([]a2a.Artifact(nil), c.Artifacts...),
	}
}

// Event is the value delivered to listeners: exactly one of Status,
// Message, or Artifact is populated.
type Event struct {
	Status   *a2a.StatusUpdateEvent
	Message  *a2a.MessageEvent
	Artifact *a2a.ArtifactUpdateEvent
}

type listener struct {
	ch              chan Event
	consecutiveDrop int
}

// Store is the concurrent task map plus per-task listener sets.
type Store struct {
	mu        sync.RWMutex
	tasks     map[string]*Context
	listeners map[string][]*listener
	logger    *log.Logger

	// emitMu serialises UpdateState/NotifyMessage/NotifyArtifact's
	// snapshot-then-fanOut sequence. Listener bookkeeping
	// (consecutiveDrop, the non-blocking drop-oldest send) is not
	// itself guarded by mu, so two emitters racing on the same task
	// would otherwise step on the same *listener concurrently.
	emitMu sync.Mutex
}

func New(logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		tasks:     make(map[string]*Context),
		listeners: make(map[string][]*listener),
		logger:    logger,
	}
}

// Create inserts a new context in SUBMITTED if id is absent, or
// returns the existing one (idempotent). An empty id is assigned a
// fresh UUID.
func (s *Store) Create(id string) *Context {
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.tasks[id]; ok {
		return existing
	}

	now := time.Now().UTC()
	ctx := &Context{ID: id, State: a2a.TaskStateSubmitted, CreatedAt: now, UpdatedAt: now}
	s.tasks[id] = ctx
	return ctx
}

// Get returns a snapshot copy of the task context.
func (s *Store) Get(id string) (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, ok := s.tasks[id]
	if !ok {
		return nil, &ErrNotFound{ID: id}
	}
	cp := *ctx
	cp.History = append([]a2a.Message(nil), ctx.History...)
	cp.Artifacts = append([]a2a.Artifact(nil), ctx.Artifacts...)
	return &cp, nil
}

// UpdateState validates the transition, mutates state and UpdatedAt on
// success, and fans out a StatusUpdate event to every listener unless
// the transition was a self-transition (which refreshes UpdatedAt but
// emits nothing).
func (s *Store) UpdateState(id string, next a2a.TaskState, message string) error {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()

	ctx, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return &ErrNotFound{ID: id}
	}

	if next == ctx.State {
		ctx.UpdatedAt = time.Now().UTC()
		s.mu.Unlock()
		return nil
	}

	if !allowedTransitions[ctx.State][next] {
		s.mu.Unlock()
		return &ErrInvalidTransition{From: ctx.State, To: next}
	}

	ctx.State = next
	ctx.Message = message
	ctx.UpdatedAt = time.Now().UTC()

	event := Event{Status: &a2a.StatusUpdateEvent{
		TaskID:    id,
		State:     next,
		Message:   message,
		Timestamp: ctx.UpdatedAt,
	}}
	ls := append([]*listener(nil), s.listeners[id]...)
	s.mu.Unlock()

	s.fanOut(id, ls, event)
	return nil
}

// NotifyMessage appends a message to the task's history and fans out a
// Message event.
func (s *Store) NotifyMessage(id string, msg a2a.Message) error {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	ctx, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return &ErrNotFound{ID: id}
	}
	ctx.History = append(ctx.History, msg)
	ctx.UpdatedAt = time.Now().UTC()
	event := Event{Message: &a2a.MessageEvent{TaskID: id, Message: msg, Timestamp: ctx.UpdatedAt}}
	ls := append([]*listener(nil), s.listeners[id]...)
	s.mu.Unlock()

	s.fanOut(id, ls, event)
	return nil
}

// NotifyArtifact appends/revises an artifact and fans out an
// ArtifactUpdate event.
func (s *Store) NotifyArtifact(id string, artifact a2a.Artifact) error {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	ctx, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return &ErrNotFound{ID: id}
	}

	replaced := false
	for i, a := range ctx.Artifacts {
		if a.ID == artifact.ID {
			ctx.Artifacts[i] = artifact
			replaced = true
			break
		}
	}
	if !replaced {
		ctx.Artifacts = append(ctx.Artifacts, artifact)
	}
	ctx.UpdatedAt = time.Now().UTC()
	event := Event{Artifact: &a2a.ArtifactUpdateEvent{TaskID: id, Artifact: artifact, Timestamp: ctx.UpdatedAt}}
	ls := append([]*listener(nil), s.listeners[id]...)
	s.mu.Unlock()

	s.fanOut(id, ls, event)
	return nil
}

// Delete removes the context and its listener list. Any events still
// queued on listener channels the caller holds a reference to are
// lost; this is acceptable because delete is an administrative
// operation, not a normal lifecycle step.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	for _, l := range s.listeners[id] {
		close(l.ch)
	}
	delete(s.listeners, id)
}

// AddListener registers a new bounded event channel for a task.
// Listeners added after an event fires never receive prior events; a
// caller that needs the initial snapshot must fetch it via Get.
func (s *Store) AddListener(id string) <-chan Event {
	ch := make(chan Event, listenerQueueSize)
	l := &listener{ch: ch}

	s.mu.Lock()
	s.listeners[id] = append(s.listeners[id], l)
	s.mu.Unlock()

	return ch
}

// RemoveListener unregisters a channel previously returned by
// AddListener. Removing an unknown channel is a no-op.
func (s *Store) RemoveListener(id string, ch <-chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ls := s.listeners[id]
	for i, l := range ls {
		if l.ch == ch {
			s.listeners[id] = append(ls[:i], ls[i+1:]...)
			return
		}
	}
}

// fanOut delivers event to every listener snapshot without blocking:
// a full channel has its oldest entry dropped (logged) before the new
// event is enqueued. A listener that drops maxConsecutiveDrops events
// in a row is removed from the fan-out set.
func (s *Store) fanOut(taskID string, ls []*listener, event Event) {
	var stale []*listener

	for _, l := range ls {
		select {
		case l.ch <- event:
			l.consecutiveDrop = 0
		default:
			select {
			case <-l.ch:
			default:
			}
			select {
			case l.ch <- event:
				l.consecutiveDrop++
				s.logger.Warn("listener queue full, dropped oldest event", "taskId", taskID)
			default:
			}
			if l.consecutiveDrop >= maxConsecutiveDrops {
				stale = append(stale, l)
			}
		}
	}

	if len(stale) == 0 {
		return
	}

	s.mu.Lock()
	for _, dead := range stale {
		ls := s.listeners[taskID]
		for i, l := range ls {
			if l == dead {
				s.listeners[taskID] = append(ls[:i], ls[i+1:]...)
				break
			}
		}
		s.logger.Warn("removing unresponsive listener", "taskId", taskID)
	}
	s.mu.Unlock()
}
