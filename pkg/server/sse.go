package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/agentvault/agentvault-go/pkg/a2a"
	"github.com/agentvault/agentvault-go/pkg/taskstore"
)

const heartbeatInterval = 25 * time.Second

// serveStream upgrades the response to text/event-stream and forwards
// every Event the store emits for taskID as a typed frame, per
// SPEC_FULL §4.4.2. It blocks until the task reaches a terminal
// state, the listener channel is closed (Delete), or the client
// disconnects.
func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, taskID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	task, err := s.Store.Get(taskID)
	if err != nil {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// A task that is already terminal will never emit another event;
	// send its current status as a snapshot and close instead of
	// blocking on a listener that never fires (no replay on join).
	if task.Status.State.IsTerminal() {
		writeFrame(w, taskstore.Event{Status: &a2a.StatusUpdateEvent{
			TaskID:    task.ID,
			State:     task.Status.State,
			Message:   task.Status.Message,
			Timestamp: task.Status.UpdatedAt,
		}})
		flusher.Flush()
		return
	}

	ch := s.Store.AddListener(taskID)
	defer s.Store.RemoveListener(taskID, ch)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			if !writeFrame(w, evt) {
				writeErrorFrame(w, "encoding_failure", "failed to encode event payload")
				flusher.Flush()
				return
			}
			flusher.Flush()
			if isTerminal(evt) {
				return
			}
		case <-ticker.C:
			_, _ = w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()
		}
	}
}

func isTerminal(evt taskstore.Event) bool {
	return evt.Status != nil && evt.Status.State.IsTerminal()
}

func writeFrame(w http.ResponseWriter, evt taskstore.Event) bool {
	var eventType a2a.EventType
	var payload any

	switch {
	case evt.Status != nil:
		eventType, payload = a2a.EventTypeStatus, evt.Status
	case evt.Message != nil:
		eventType, payload = a2a.EventTypeMessage, evt.Message
	case evt.Artifact != nil:
		eventType, payload = a2a.EventTypeArtifact, evt.Artifact
	default:
		return true
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}

	_, _ = w.Write([]byte("event: " + string(eventType) + "\n"))
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n\n"))
	return true
}

func writeErrorFrame(w http.ResponseWriter, errCode, message string) {
	payload, _ := json.Marshal(a2a.StreamErrorEvent{Error: errCode, Message: message})
	_, _ = w.Write([]byte("event: " + string(a2a.EventTypeError) + "\n"))
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n\n"))
}
