package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/lightlogic3/popflow/internal/domain"
)

// Event types emitted by the game engine.
const (
	// TypePersistMessages requests background persistence of a batch of
	// game message rows. Payload: PersistMessagesPayload.
	TypePersistMessages = "game.persist_messages"
)

// PersistMessagesPayload is the payload of TypePersistMessages events.
type PersistMessagesPayload struct {
	Messages []*domain.GameMessage `json:"messages"`
}

// TaskRequestEvent is a request to run background work. It carries the
// task type and a serialized payload, with no dependency on the task
// package itself.
type TaskRequestEvent struct {
	// ID uniquely identifies this event.
	ID uuid.UUID `json:"id"`

	// Type names the kind of background work requested.
	Type string `json:"type"`

	// Payload holds the type-specific data serialized as JSON.
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is when the event was created.
	CreatedAt time.Time `json:"created_at"`
}

// NewTaskRequestEvent creates an event of the given type, serializing the
// payload to JSON.
func NewTaskRequestEvent(eventType string, payload any) (*TaskRequestEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &TaskRequestEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// UnmarshalPayload decodes the event payload into v.
func (e *TaskRequestEvent) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler processes emitted events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *TaskRequestEvent) error
}

// EventEmitter publishes events to registered handlers without knowing
// who they are.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *TaskRequestEvent) error
}
