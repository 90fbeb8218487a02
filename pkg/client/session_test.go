package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentvault/agentvault-go/pkg/a2a"
	"github.com/agentvault/agentvault-go/pkg/credentials"
	agentvaulterrors "github.com/agentvault/agentvault-go/pkg/errors"
	"github.com/agentvault/agentvault-go/pkg/jsonrpc"
)

// rpcFixture stands in for an agent's /rpc endpoint: it decodes the
// envelope, hands the method and raw params to respond, and marshals
// whatever jsonrpc.Response respond returns.
func rpcFixture(t *testing.T, respond func(method string, params json.RawMessage) jsonrpc.Response) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonrpc.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := respond(req.Method, req.Params)
		resp.ID = req.ID
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func noAuthCard(url string) *a2a.AgentCard {
	return &a2a.AgentCard{
		HumanReadableID: "acme_vault",
		URL:             url,
		AuthSchemes:     []a2a.AgentAuthentication{{Scheme: a2a.AuthSchemeNone}},
	}
}

func TestInitiateTaskReturnsNewTaskID(t *testing.T) {
	srv := rpcFixture(t, func(method string, params json.RawMessage) jsonrpc.Response {
		require.Equal(t, "tasks/send", method)
		var p a2a.TaskSendParams
		require.NoError(t, json.Unmarshal(params, &p))
		assert.Empty(t, p.ID)
		assert.Equal(t, "hello", p.Message.Parts[0].Text)
		return jsonrpc.NewResultResponse(nil, map[string]string{"id": "task-1"})
	})
	defer srv.Close()

	s := New(credentials.New(""))
	card := noAuthCard(srv.URL)

	id, err := s.InitiateTask(t.Context(), card, a2a.NewTextMessage(a2a.RoleUser, "hello"), nil)
	require.NoError(t, err)
	assert.Equal(t, "task-1", id)
}

func TestInitiateTaskInjectsMCPContextWithoutMutatingCaller(t *testing.T) {
	srv := rpcFixture(t, func(method string, params json.RawMessage) jsonrpc.Response {
		var p a2a.TaskSendParams
		require.NoError(t, json.Unmarshal(params, &p))
		assert.Equal(t, "prod", p.Message.Metadata[a2a.MCPContextKey].(map[string]any)["env"])
		return jsonrpc.NewResultResponse(nil, map[string]string{"id": "task-2"})
	})
	defer srv.Close()

	s := New(credentials.New(""))
	card := noAuthCard(srv.URL)
	original := a2a.NewTextMessage(a2a.RoleUser, "hello")

	_, err := s.InitiateTask(t.Context(), card, original, &InitiateOptions{MCPContext: map[string]any{"env": "prod"}})
	require.NoError(t, err)
	assert.Nil(t, original.Metadata)
}

func TestSendMessageToExistingTask(t *testing.T) {
	srv := rpcFixture(t, func(method string, params json.RawMessage) jsonrpc.Response {
		var p a2a.TaskSendParams
		require.NoError(t, json.Unmarshal(params, &p))
		assert.Equal(t, "task-9", p.ID)
		return jsonrpc.NewResultResponse(nil, map[string]string{"id": "task-9"})
	})
	defer srv.Close()

	s := New(credentials.New(""))
	card := noAuthCard(srv.URL)

	err := s.SendMessage(t.Context(), card, "task-9", a2a.NewTextMessage(a2a.RoleUser, "follow up"))
	require.NoError(t, err)
}

func TestGetTaskStatusDecodesFullTask(t *testing.T) {
	srv := rpcFixture(t, func(method string, params json.RawMessage) jsonrpc.Response {
		require.Equal(t, "tasks/get", method)
		return jsonrpc.NewResultResponse(nil, a2a.Task{
			ID:     "task-5",
			Status: a2a.TaskStatus{State: a2a.TaskStateCompleted},
		})
	})
	defer srv.Close()

	s := New(credentials.New(""))
	card := noAuthCard(srv.URL)

	task, err := s.GetTaskStatus(t.Context(), card, "task-5")
	require.NoError(t, err)
	assert.Equal(t, "task-5", task.ID)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)
}

func TestTerminateTaskReturnsFalseSuccessWithoutError(t *testing.T) {
	srv := rpcFixture(t, func(method string, params json.RawMessage) jsonrpc.Response {
		require.Equal(t, "tasks/cancel", method)
		return jsonrpc.NewResultResponse(nil, map[string]any{"success": false, "message": "already completed"})
	})
	defer srv.Close()

	s := New(credentials.New(""))
	card := noAuthCard(srv.URL)

	ok, err := s.TerminateTask(t.Context(), card, "task-5")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoteErrorBecomesA2ARemoteAgentError(t *testing.T) {
	srv := rpcFixture(t, func(method string, params json.RawMessage) jsonrpc.Response {
		return jsonrpc.NewErrorResponse(nil, jsonrpc.CodeApplication, "task not found", nil)
	})
	defer srv.Close()

	s := New(credentials.New(""))
	card := noAuthCard(srv.URL)

	_, err := s.GetTaskStatus(t.Context(), card, "ghost")
	require.Error(t, err)
	assert.IsType(t, &agentvaulterrors.A2ARemoteAgentError{}, err)
}

func TestCallRetriesOnceAfter401ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req jsonrpc.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := jsonrpc.NewResultResponse(req.ID, map[string]string{"id": "task-1"})
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	t.Setenv("AGENTVAULT_OAUTH_ACME_VAULT_CLIENT_ID", "cid")
	t.Setenv("AGENTVAULT_OAUTH_ACME_VAULT_CLIENT_SECRET", "csec")

	tokenCalls := int32(0)
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	s := New(credentials.New(""))
	card := &a2a.AgentCard{
		HumanReadableID: "acme_vault",
		URL:             srv.URL,
		AuthSchemes:     []a2a.AgentAuthentication{{Scheme: a2a.AuthSchemeOAuth2, TokenURL: tokenSrv.URL}},
	}

	id, err := s.InitiateTask(t.Context(), card, a2a.NewTextMessage(a2a.RoleUser, "hi"), nil)
	require.NoError(t, err)
	assert.Equal(t, "task-1", id)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&tokenCalls), "the first cached token must be invalidated before the retry fetches a fresh one")
}

func TestCallFailsAuthenticationWhenStillUnauthorizedAfterRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := New(credentials.New(""))
	card := noAuthCard(srv.URL)

	_, err := s.InitiateTask(t.Context(), card, a2a.NewTextMessage(a2a.RoleUser, "hi"), nil)
	require.Error(t, err)
	assert.IsType(t, &agentvaulterrors.A2AAuthenticationError{}, err)
}
