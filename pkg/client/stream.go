package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agentvault/agentvault-go/pkg/a2a"
	agentvaulterrors "github.com/agentvault/agentvault-go/pkg/errors"
)

// Event is one item from a receiveMessages stream: exactly one of
// Status, Message, or Artifact is populated, unless Err is set, which
// means the stream ended abnormally (a server-sent error frame, an
// idle timeout, or a transport failure) and no further events follow.
type Event struct {
	Type     a2a.EventType
	Status   *a2a.StatusUpdateEvent
	Message  *a2a.MessageEvent
	Artifact *a2a.ArtifactUpdateEvent
	Err      error
}

// frame is one raw event:/data: block read off the wire.
type frame struct {
	event string
	data  []byte
}

// ReceiveMessages opens an SSE connection for taskID and returns a
// lazy, cancellable stream of events. The returned cancel function
// closes the underlying connection promptly; the channel is always
// closed before ReceiveMessages's background goroutine exits, whether
// that exit was due to a terminal task state, a server error frame,
// an idle timeout, or cancellation.
func (s *Session) ReceiveMessages(ctx context.Context, card *a2a.AgentCard, taskID string) (<-chan Event, func(), error) {
	streamCtx, cancel := context.WithCancel(ctx)

	paramsRaw, _ := json.Marshal(a2a.TaskIDParams{ID: taskID})
	body, _ := json.Marshal(struct {
		JSONRPC string          `json:"jsonrpc"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params"`
		ID      string          `json:"id"`
	}{JSONRPC: "2.0", Method: "tasks/sendSubscribe", Params: paramsRaw, ID: "sub"})

	req, err := http.NewRequestWithContext(streamCtx, http.MethodPost, card.URL, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, nil, agentvaulterrors.NewA2AMessage("failed to build subscribe request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	if authErr := s.applyAuth(ctx, card, req); authErr != nil {
		cancel()
		return nil, nil, authErr
	}

	httpClient := s.HTTPClient
	if httpClient.Timeout != 0 {
		// The default client carries the 30s non-stream timeout; a
		// stream is long-lived by design, so issue this request with a
		// client that never times out the connection and enforce the
		// idle-read timeout ourselves instead.
		unbounded := *httpClient
		unbounded.Timeout = 0
		httpClient = &unbounded
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, nil, agentvaulterrors.NewA2AConnection("failed to open event stream", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, nil, agentvaulterrors.NewA2AConnection("unexpected status opening event stream", nil)
	}

	events := make(chan Event)

	go func() {
		defer close(events)
		defer resp.Body.Close()
		pumpFrames(streamCtx, resp.Body, events)
	}()

	return events, cancel, nil
}

// pumpFrames reads event:/data: blocks off r and emits a typed Event
// per block, enforcing an idle-read timeout via a background reader
// goroutine so a stalled connection doesn't hang forever.
func pumpFrames(ctx context.Context, r io.Reader, events chan<- Event) {
	type readResult struct {
		f   *frame
		err error
	}

	frames := make(chan readResult)
	reader := bufio.NewReader(r)

	go func() {
		for {
			f, err := readFrame(reader)
			frames <- readResult{f, err}
			if err != nil {
				return
			}
		}
	}()

	timer := time.NewTimer(SSEIdleTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-timer.C:
			events <- Event{Err: agentvaulterrors.NewA2ATimeout("sse idle timeout exceeded", nil)}
			return

		case res := <-frames:
			if ctx.Err() != nil {
				return // cancelled: a read failure here is the closed connection
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(SSEIdleTimeout)

			if res.err != nil {
				events <- Event{Err: agentvaulterrors.NewA2AConnection("event stream read failed", res.err)}
				return
			}
			if res.f == nil {
				continue // heartbeat comment line, nothing to emit
			}

			evt, done := decodeFrame(*res.f)
			events <- evt
			if done {
				return
			}
		}
	}
}

// readFrame reads one event:/data: block terminated by a blank line.
// A line starting with ':' is a heartbeat comment and yields (nil,
// nil) rather than a frame.
func readFrame(r *bufio.Reader) (*frame, error) {
	var eventType string
	var data bytes.Buffer
	sawAny := false

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if !sawAny {
				continue // stray blank line between blocks
			}
			if eventType == "" {
				return nil, nil
			}
			return &frame{event: eventType, data: data.Bytes()}, nil

		case strings.HasPrefix(line, ":"):
			return nil, nil

		case strings.HasPrefix(line, "event:"):
			sawAny = true
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))

		case strings.HasPrefix(line, "data:"):
			sawAny = true
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}

// decodeFrame turns a raw frame into a typed Event and reports
// whether the stream should end after it (a terminal status update or
// a server-sent error).
func decodeFrame(f frame) (Event, bool) {
	switch a2a.EventType(f.event) {
	case a2a.EventTypeStatus:
		var payload a2a.StatusUpdateEvent
		if err := json.Unmarshal(f.data, &payload); err != nil {
			return Event{Err: agentvaulterrors.NewA2AMessage("malformed task_status payload", err)}, true
		}
		return Event{Type: a2a.EventTypeStatus, Status: &payload}, payload.State.IsTerminal()

	case a2a.EventTypeMessage:
		var payload a2a.MessageEvent
		if err := json.Unmarshal(f.data, &payload); err != nil {
			return Event{Err: agentvaulterrors.NewA2AMessage("malformed task_message payload", err)}, true
		}
		return Event{Type: a2a.EventTypeMessage, Message: &payload}, false

	case a2a.EventTypeArtifact:
		var payload a2a.ArtifactUpdateEvent
		if err := json.Unmarshal(f.data, &payload); err != nil {
			return Event{Err: agentvaulterrors.NewA2AMessage("malformed task_artifact payload", err)}, true
		}
		return Event{Type: a2a.EventTypeArtifact, Artifact: &payload}, false

	case a2a.EventTypeError:
		var payload a2a.StreamErrorEvent
		_ = json.Unmarshal(f.data, &payload)
		return Event{Type: a2a.EventTypeError, Err: agentvaulterrors.NewA2AConnection("stream error: "+payload.Message, nil)}, true

	default:
		return Event{Err: agentvaulterrors.NewA2AMessage("unknown sse event type: "+f.event, nil)}, true
	}
}
