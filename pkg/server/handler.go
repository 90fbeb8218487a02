package server

import (
	"context"

	"github.com/agentvault/agentvault-go/pkg/a2a"
	"github.com/agentvault/agentvault-go/pkg/taskstore"
)

// TaskHandler performs the agent's actual work for a task after
// tasks/send has accepted it. It runs on its own goroutine, observes
// ctx for cancellation (cancelled by tasks/cancel, per §5's
// cancellation contract), and drives the task to a terminal state via
// store. SPEC_FULL.md deliberately excludes concrete agent business
// logic; EchoHandler below is the only implementation shipped.
type TaskHandler interface {
	HandleTask(ctx context.Context, store *taskstore.Store, taskID string, incoming a2a.Message)
}

// TaskHandlerFunc adapts a plain function to TaskHandler.
type TaskHandlerFunc func(ctx context.Context, store *taskstore.Store, taskID string, incoming a2a.Message)

func (f TaskHandlerFunc) HandleTask(ctx context.Context, store *taskstore.Store, taskID string, incoming a2a.Message) {
	f(ctx, store, taskID, incoming)
}

// EchoHandler is the reference/demo agent: it transitions to WORKING,
// replies with the incoming message's text parts echoed back from the
// assistant role, then transitions to COMPLETED. Grounded in the
// teacher's service.EchoTaskManager, which serves the same purpose of
// giving operators something runnable without real agent logic.
type EchoHandler struct{}

func (EchoHandler) HandleTask(ctx context.Context, store *taskstore.Store, taskID string, incoming a2a.Message) {
	if err := store.UpdateState(taskID, a2a.TaskStateWorking, ""); err != nil {
		return
	}

	select {
	case <-ctx.Done():
		return
	default:
	}

	reply := a2a.Message{Role: a2a.RoleAssistant}
	for _, part := range incoming.Parts {
		if part.Type == a2a.PartTypeText {
			reply.Parts = append(reply.Parts, a2a.NewTextPart(part.Text))
		}
	}
	if len(reply.Parts) == 0 {
		reply.Parts = append(reply.Parts, a2a.NewTextPart(""))
	}

	if err := store.NotifyMessage(taskID, reply); err != nil {
		return
	}

	select {
	case <-ctx.Done():
		_ = store.UpdateState(taskID, a2a.TaskStateCanceled, "canceled before completion")
		return
	default:
	}

	_ = store.UpdateState(taskID, a2a.TaskStateCompleted, "")
}
