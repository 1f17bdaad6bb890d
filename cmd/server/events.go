package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lightlogic3/popflow/internal/events"
	"github.com/lightlogic3/popflow/internal/store"
	"github.com/lightlogic3/popflow/internal/task"
)

// persistHandler turns message-persist events into background tasks on
// the task manager. Message-log writes are best effort: a failing write
// is logged by the task runtime, never surfaced to the user turn.
type persistHandler struct {
	manager  *task.Manager
	messages store.GameMessageStore
	logger   *slog.Logger
}

var _ events.EventHandler = (*persistHandler)(nil)

func newPersistHandler(manager *task.Manager, messages store.GameMessageStore, logger *slog.Logger) *persistHandler {
	return &persistHandler{
		manager:  manager,
		messages: messages,
		logger:   logger.With("component", "persist_handler"),
	}
}

// HandleEvent implements events.EventHandler.
func (h *persistHandler) HandleEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	if event.Type != events.TypePersistMessages {
		return nil
	}

	var payload events.PersistMessagesPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return fmt.Errorf("decode persist payload: %w", err)
	}

	_, err := h.manager.Submit(ctx, task.Spec{
		Kind:        task.KindBlocking,
		Description: fmt.Sprintf("persist %d game messages", len(payload.Messages)),
		Fn: func(taskCtx context.Context) (any, error) {
			for _, msg := range payload.Messages {
				if err := h.messages.Create(taskCtx, msg); err != nil {
					return nil, fmt.Errorf("persist message %s: %w", msg.ID, err)
				}
			}
			return len(payload.Messages), nil
		},
	})
	if err != nil {
		return fmt.Errorf("submit persist task: %w", err)
	}
	return nil
}
