// Package client implements the client half of the A2A protocol
// runtime (C5): initiate/send/get/cancel over JSON-RPC, and a lazy,
// cancellable SSE event stream for tasks/sendSubscribe. Grounded in
// the teacher's pkg/service/jsonrpc.go RPCClient (raw http.Client,
// manual envelope marshal/unmarshal), preferred here over the
// teacher's fiber-client alternative because the spec requires a real
// incrementally-read SSE consumer that stdlib's bufio.Reader supports
// directly.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/agentvault/agentvault-go/pkg/a2a"
	"github.com/agentvault/agentvault-go/pkg/credentials"
	agentvaulterrors "github.com/agentvault/agentvault-go/pkg/errors"
	"github.com/agentvault/agentvault-go/pkg/jsonrpc"
)

// DefaultTimeout is the default per-request timeout for non-streaming
// operations, per SPEC_FULL §5.
const DefaultTimeout = 30 * time.Second

// SSEIdleTimeout bounds how long receiveMessages waits for the next
// frame before declaring the connection dead.
const SSEIdleTimeout = 60 * time.Second

// Session is a reusable client over the A2A wire protocol: one HTTP
// client, one credential store, and a per-session OAuth2 token cache
// shared across every agent it talks to. A Session is safe for
// concurrent use; http.Client already is, and the token cache
// synchronises itself.
type Session struct {
	HTTPClient  *http.Client
	Credentials *credentials.Store
	Logger      *log.Logger

	tokens *credentials.TokenCache
}

// Option configures a Session at construction time.
type Option func(*Session)

func WithHTTPClient(hc *http.Client) Option { return func(s *Session) { s.HTTPClient = hc } }
func WithLogger(l *log.Logger) Option       { return func(s *Session) { s.Logger = l } }

func New(store *credentials.Store, opts ...Option) *Session {
	s := &Session{
		HTTPClient:  &http.Client{Timeout: DefaultTimeout},
		Credentials: store,
		Logger:      log.Default(),
		tokens:      credentials.NewTokenCache(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// call performs a single non-streaming JSON-RPC round trip against
// card.URL, applying authentication and the standard
// invalidate-and-retry-once behaviour on a 401.
func (s *Session) call(ctx context.Context, card *a2a.AgentCard, method string, params any, id string) (*jsonrpc.Response, error) {
	resp, status, err := s.doCall(ctx, card, method, params, id)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		s.invalidateAuth(card)
		resp, status, err = s.doCall(ctx, card, method, params, id)
		if err != nil {
			return nil, err
		}
	}
	if status == http.StatusUnauthorized {
		return nil, agentvaulterrors.NewA2AAuthentication("authentication rejected after retry", nil)
	}
	return resp, nil
}

func (s *Session) doCall(ctx context.Context, card *a2a.AgentCard, method string, params any, id string) (*jsonrpc.Response, int, error) {
	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return nil, 0, agentvaulterrors.NewA2AMessage("failed to encode params", err)
	}

	envelope := jsonrpc.Request{
		JSONRPC: jsonrpc.Version,
		Method:  method,
		Params:  paramsRaw,
		ID:      json.RawMessage(`"` + id + `"`),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, 0, agentvaulterrors.NewA2AMessage("failed to encode request envelope", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, card.URL, bytes.NewReader(body))
	if err != nil {
		return nil, 0, agentvaulterrors.NewA2AMessage("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if authErr := s.applyAuth(ctx, card, req); authErr != nil {
		return nil, 0, authErr
	}

	httpResp, err := s.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, agentvaulterrors.NewA2ATimeout("request timed out", err)
		}
		return nil, 0, agentvaulterrors.NewA2AConnection("request failed", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusUnauthorized {
		return nil, httpResp.StatusCode, nil
	}

	var rpcResp jsonrpc.Response
	if err := json.NewDecoder(httpResp.Body).Decode(&rpcResp); err != nil {
		return nil, 0, agentvaulterrors.NewA2AMessage("failed to decode response envelope", err)
	}

	return &rpcResp, httpResp.StatusCode, nil
}

func asRemoteError(resp *jsonrpc.Response) error {
	if resp.Error == nil {
		return nil
	}
	return agentvaulterrors.NewA2ARemoteAgent(resp.Error.Code, resp.Error.Message, resp.Error.Data)
}

// InitiateOptions carries the optional extras for InitiateTask.
// MCPContext is injected into the message metadata; WebhookURL is
// accepted but not included in the request.
type InitiateOptions struct {
	MCPContext map[string]any
	WebhookURL string
}

// InitiateTask builds a tasks/send with no id, injecting MCP context
// into a copy of message (the caller's message is never mutated),
// and returns the new task's id.
func (s *Session) InitiateTask(ctx context.Context, card *a2a.AgentCard, message *a2a.Message, opts *InitiateOptions) (string, error) {
	toSend := *message
	if opts != nil && opts.MCPContext != nil {
		toSend = *message.WithMCPContext(opts.MCPContext)
	}

	resp, err := s.call(ctx, card, "tasks/send", a2a.TaskSendParams{Message: toSend}, "initiate")
	if err != nil {
		return "", err
	}
	if remoteErr := asRemoteError(resp); remoteErr != nil {
		return "", remoteErr
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := decodeResult(resp.Result, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

// SendMessage appends message to an existing task.
func (s *Session) SendMessage(ctx context.Context, card *a2a.AgentCard, taskID string, message *a2a.Message) error {
	resp, err := s.call(ctx, card, "tasks/send", a2a.TaskSendParams{ID: taskID, Message: *message}, "send")
	if err != nil {
		return err
	}
	return asRemoteError(resp)
}

// GetTaskStatus fetches the full current Task.
func (s *Session) GetTaskStatus(ctx context.Context, card *a2a.AgentCard, taskID string) (*a2a.Task, error) {
	resp, err := s.call(ctx, card, "tasks/get", a2a.TaskIDParams{ID: taskID}, "get")
	if err != nil {
		return nil, err
	}
	if remoteErr := asRemoteError(resp); remoteErr != nil {
		return nil, remoteErr
	}

	var task a2a.Task
	if err := decodeResult(resp.Result, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// TerminateTask sends tasks/cancel and returns the boolean success
// field even when the server replies 200 with success=false.
func (s *Session) TerminateTask(ctx context.Context, card *a2a.AgentCard, taskID string) (bool, error) {
	resp, err := s.call(ctx, card, "tasks/cancel", a2a.TaskIDParams{ID: taskID}, "cancel")
	if err != nil {
		return false, err
	}
	if remoteErr := asRemoteError(resp); remoteErr != nil {
		return false, remoteErr
	}

	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message,omitempty"`
	}
	if err := decodeResult(resp.Result, &result); err != nil {
		return false, err
	}
	return result.Success, nil
}

func decodeResult(result any, out any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return agentvaulterrors.NewA2AMessage("failed to re-encode result", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return agentvaulterrors.NewA2AMessage(fmt.Sprintf("failed to decode result into %T", out), err)
	}
	return nil
}
