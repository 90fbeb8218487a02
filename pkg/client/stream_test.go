package client

import (
	"bufio"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentvault/agentvault-go/pkg/a2a"
	"github.com/agentvault/agentvault-go/pkg/credentials"
)

// sseFixture serves a fixed, pre-baked sequence of event:/data: blocks
// over a streaming response, with an optional trailing pause to
// exercise idle-timeout handling.
func sseFixture(t *testing.T, blocks []string, holdOpen time.Duration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, block := range blocks {
			fmt.Fprint(w, block)
			flusher.Flush()
		}
		if holdOpen > 0 {
			time.Sleep(holdOpen)
		}
	}))
}

func statusBlock(state a2a.TaskState) string {
	return "event: task_status\ndata: {\"taskId\":\"t1\",\"state\":\"" + string(state) + "\",\"timestamp\":\"2026-01-01T00:00:00Z\"}\n\n"
}

func messageBlock(text string) string {
	return "event: task_message\ndata: {\"taskId\":\"t1\",\"message\":{\"role\":\"assistant\",\"parts\":[{\"type\":\"text\",\"content\":\"" + text + "\"}]},\"timestamp\":\"2026-01-01T00:00:00Z\"}\n\n"
}

func TestReceiveMessagesDecodesTypedFramesUntilTerminal(t *testing.T) {
	srv := sseFixture(t, []string{
		": heartbeat\n\n",
		statusBlock(a2a.TaskStateWorking),
		messageBlock("hello back"),
		statusBlock(a2a.TaskStateCompleted),
	}, 0)
	defer srv.Close()

	s := New(credentials.New(""))
	card := noAuthCard(srv.URL)

	events, cancel, err := s.ReceiveMessages(t.Context(), card, "t1")
	require.NoError(t, err)
	defer cancel()

	var got []Event
	for evt := range events {
		got = append(got, evt)
	}

	require.Len(t, got, 3)
	assert.Equal(t, a2a.EventTypeStatus, got[0].Type)
	assert.Equal(t, a2a.TaskStateWorking, got[0].Status.State)
	assert.Equal(t, a2a.EventTypeMessage, got[1].Type)
	assert.Equal(t, "hello back", got[1].Message.Message.Parts[0].Text)
	assert.Equal(t, a2a.EventTypeStatus, got[2].Type)
	assert.Equal(t, a2a.TaskStateCompleted, got[2].Status.State)
	assert.Nil(t, got[2].Err)
}

func TestReceiveMessagesSurfacesServerErrorFrame(t *testing.T) {
	srv := sseFixture(t, []string{
		"event: error\ndata: {\"error\":\"boom\",\"message\":\"agent crashed\"}\n\n",
	}, 0)
	defer srv.Close()

	s := New(credentials.New(""))
	card := noAuthCard(srv.URL)

	events, cancel, err := s.ReceiveMessages(t.Context(), card, "t1")
	require.NoError(t, err)
	defer cancel()

	evt := <-events
	require.Error(t, evt.Err)

	_, stillOpen := <-events
	assert.False(t, stillOpen, "the channel must close after a terminal error frame")
}

func TestReceiveMessagesCancelStopsTheStream(t *testing.T) {
	srv := sseFixture(t, []string{statusBlock(a2a.TaskStateWorking)}, 5*time.Second)
	defer srv.Close()

	s := New(credentials.New(""))
	card := noAuthCard(srv.URL)

	events, cancel, err := s.ReceiveMessages(t.Context(), card, "t1")
	require.NoError(t, err)

	<-events // the one WORKING status frame
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel did not close promptly after cancel")
	}
}

func TestReceiveMessagesRejectsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := New(credentials.New(""))
	card := noAuthCard(srv.URL)

	_, _, err := s.ReceiveMessages(t.Context(), card, "t1")
	require.Error(t, err)
}

func TestReadFrameSkipsHeartbeatsAndParsesBlock(t *testing.T) {
	raw := ": ping\n\nevent: task_status\ndata: {\"state\":\"WORKING\"}\n\n"
	r := bufio.NewReader(strings.NewReader(raw))

	f, err := readFrame(r)
	require.NoError(t, err)
	assert.Nil(t, f) // the heartbeat comment

	f, err = readFrame(r)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "task_status", f.event)
}
