package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/lightlogic3/popflow/internal/domain"
	"github.com/lightlogic3/popflow/internal/task"
)

// GameInitRequest selects the subtask to play.
type GameInitRequest struct {
	Mode      string `json:"mode,omitempty"       validate:"omitempty,oneof=explicit continue random create"`
	SubtaskID string `json:"subtask_id,omitempty" validate:"omitempty,uuid"`
	TaskID    string `json:"task_id,omitempty"    validate:"omitempty,uuid"`
}

// GameChatRequest is one user turn.
type GameChatRequest struct {
	SessionID string `json:"session_id" validate:"required,uuid"`
	Content   string `json:"content"    validate:"required"`
}

// TaskResponse describes one tracked task.
type TaskResponse struct {
	ID          uuid.UUID `json:"id"`
	Kind        string    `json:"kind"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	Error       string    `json:"error,omitempty"`
}

// NewTaskResponse converts a tracked task into its API shape.
func NewTaskResponse(t *task.Task) TaskResponse {
	resp := TaskResponse{
		ID:          t.ID(),
		Kind:        string(t.Kind()),
		Description: t.Description(),
		Status:      string(t.Status()),
		StartedAt:   t.StartedAt(),
		EndedAt:     t.EndedAt(),
	}
	if t.Status().IsTerminal() {
		if _, err := t.Outcome(); err != nil {
			resp.Error = err.Error()
		}
	}
	return resp
}

// TaskCleanupRequest bounds the retention window for a manual cleanup.
type TaskCleanupRequest struct {
	MaxAgeMinutes int `json:"max_age_minutes" validate:"gte=0"`
}

// TaskCleanupResponse reports how many terminal tasks were removed.
type TaskCleanupResponse struct {
	Removed int `json:"removed"`
}

// JobCreateRequest defines a new scheduled job.
type JobCreateRequest struct {
	Name         string             `json:"name"          validate:"required"`
	TriggerType  string             `json:"trigger_type"  validate:"required,oneof=date interval cron"`
	TriggerArgs  domain.TriggerArgs `json:"trigger_args"`
	FuncName     string             `json:"func_name"     validate:"required"`
	FuncArgs     json.RawMessage    `json:"func_args,omitempty"`
	MaxInstances int                `json:"max_instances" validate:"gte=0"`
}
