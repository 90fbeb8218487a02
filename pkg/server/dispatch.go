package server

import (
	"context"
	"encoding/json"

	"github.com/agentvault/agentvault-go/pkg/a2a"
	"github.com/agentvault/agentvault-go/pkg/jsonrpc"
	"github.com/agentvault/agentvault-go/pkg/taskstore"
)

// rpcOutcome carries either a result or an error code/message/data,
// mirroring what the fiber handler needs to build an envelope and
// pick an HTTP status (200 for every code except -32603, which is
// 500, per §4.4.3).
type rpcOutcome struct {
	result any
	code   int
	errMsg string
	errVal any
}

func ok(result any) rpcOutcome { return rpcOutcome{result: result} }

func fail(code int, message string, data any) rpcOutcome {
	return rpcOutcome{code: code, errMsg: message, errVal: data}
}

func (o rpcOutcome) isError() bool { return o.errMsg != "" }

// dispatch routes a parsed, envelope-validated request to a built-in
// or registered method. Invalid JSON params for a built-in become
// -32602; an unknown method is -32601; a domain error from a custom
// handler becomes -32000; any other custom-handler error becomes
// -32603.
func (s *Server) dispatch(ctx context.Context, method string, raw json.RawMessage) rpcOutcome {
	switch method {
	case "tasks/send":
		return s.handleSend(ctx, raw)
	case "tasks/get":
		return s.handleGet(raw)
	case "tasks/cancel":
		return s.handleCancel(raw)
	case "tasks/sendSubscribe":
		// Handled upstream in the fiber route before dispatch is
		// reached, because a successful call upgrades the response to
		// an SSE stream instead of returning a JSON envelope.
		return fail(jsonrpc.CodeInternal, "sendSubscribe must be handled by the streaming route", nil)
	}

	entry, found := s.registry.lookup(method)
	if !found {
		return fail(jsonrpc.CodeMethodNotFound, "method not found: "+method, nil)
	}

	if err := entry.validateParams(raw); err != nil {
		return fail(jsonrpc.CodeInvalidParams, "params failed schema validation: "+err.Error(), nil)
	}

	result, err := entry.handler(ctx, s.Store, raw)
	if err != nil {
		var domainErr *DomainError
		if asDomainError(err, &domainErr) {
			return fail(jsonrpc.CodeApplication, domainErr.Message, domainErr.Data)
		}
		s.Logger.Error("custom method handler failed", "method", method, "error", err)
		return fail(jsonrpc.CodeInternal, "internal error", nil)
	}
	return ok(result)
}

func asDomainError(err error, target **DomainError) bool {
	de, ok := err.(*DomainError)
	if ok {
		*target = de
	}
	return ok
}

func (s *Server) handleSend(ctx context.Context, raw json.RawMessage) rpcOutcome {
	var params a2a.TaskSendParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return fail(jsonrpc.CodeInvalidParams, "malformed tasks/send params: "+err.Error(), nil)
	}
	if len(params.Message.Parts) == 0 {
		return fail(jsonrpc.CodeInvalidParams, "message must have at least one part", nil)
	}

	taskCtx := s.Store.Create(params.ID)

	if err := s.Store.NotifyMessage(taskCtx.ID, params.Message); err != nil {
		return fail(jsonrpc.CodeInternal, "internal error", nil)
	}

	s.startWork(taskCtx.ID, params.Message)

	return ok(map[string]string{"id": taskCtx.ID})
}

// startWork launches the configured TaskHandler on its own goroutine,
// bound to a per-task cancellation context released by tasks/cancel.
func (s *Server) startWork(taskID string, incoming a2a.Message) {
	workCtx, cancel := context.WithCancel(context.Background())

	s.cancelMu.Lock()
	s.cancelFuncs[taskID] = cancel
	s.cancelMu.Unlock()

	go func() {
		defer func() {
			s.cancelMu.Lock()
			delete(s.cancelFuncs, taskID)
			s.cancelMu.Unlock()
		}()
		s.Handler.HandleTask(workCtx, s.Store, taskID, incoming)
	}()
}

func (s *Server) handleGet(raw json.RawMessage) rpcOutcome {
	var params a2a.TaskIDParams
	if err := json.Unmarshal(raw, &params); err != nil || params.ID == "" {
		return fail(jsonrpc.CodeInvalidParams, "malformed tasks/get params", nil)
	}

	taskCtx, err := s.Store.Get(params.ID)
	if err != nil {
		return fail(jsonrpc.CodeApplication, err.Error(), nil)
	}
	return ok(taskCtx.ToTask())
}

func (s *Server) handleCancel(raw json.RawMessage) rpcOutcome {
	var params a2a.TaskIDParams
	if err := json.Unmarshal(raw, &params); err != nil || params.ID == "" {
		return fail(jsonrpc.CodeInvalidParams, "malformed tasks/cancel params", nil)
	}

	if _, err := s.Store.Get(params.ID); err != nil {
		return fail(jsonrpc.CodeApplication, err.Error(), nil)
	}

	s.cancelMu.Lock()
	if cancel, ok := s.cancelFuncs[params.ID]; ok {
		cancel()
	}
	s.cancelMu.Unlock()

	if err := s.Store.UpdateState(params.ID, a2a.TaskStateCanceled, "canceled by client request"); err != nil {
		if _, invalid := err.(*taskstore.ErrInvalidTransition); invalid {
			// Already terminal: cancellation of a finished task is a
			// no-op success, not a failure, per §5's advisory
			// cancellation contract.
			return ok(map[string]any{"success": true, "message": "task already in a terminal state"})
		}
		return fail(jsonrpc.CodeInternal, "internal error", nil)
	}

	return ok(map[string]any{"success": true})
}
