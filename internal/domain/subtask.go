package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Subtask validation errors.
var (
	ErrSubtaskIDEmpty        = errors.New("subtask ID cannot be empty")
	ErrSubtaskTaskEmpty      = errors.New("subtask task ID cannot be empty")
	ErrSubtaskObjectiveEmpty = errors.New("subtask objective cannot be empty")
	ErrSubtaskBadTarget      = errors.New("subtask target score must be positive")
	ErrSubtaskBadRounds      = errors.New("subtask max rounds must be positive")
)

// Subtask is one playable scenario of a game task: an objective the player
// argues toward, a target score, and a round limit. Subtasks are selected or
// generated during session init and linked to the user once played.
type Subtask struct {
	ID          uuid.UUID `json:"id"`
	TaskID      uuid.UUID `json:"task_id"`
	Title       string    `json:"title"`
	Objective   string    `json:"objective"`
	TargetScore int       `json:"target_score"`
	MaxRounds   int       `json:"max_rounds"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewSubtask creates a subtask under the given game task.
// Returns an error if validation fails.
func NewSubtask(taskID uuid.UUID, title, objective string, targetScore, maxRounds int) (*Subtask, error) {
	st := &Subtask{
		ID:          uuid.New(),
		TaskID:      taskID,
		Title:       title,
		Objective:   objective,
		TargetScore: targetScore,
		MaxRounds:   maxRounds,
		CreatedAt:   time.Now().UTC(),
	}

	if err := st.Validate(); err != nil {
		return nil, err
	}

	return st, nil
}

// Validate checks if the Subtask has valid data.
func (s *Subtask) Validate() error {
	if s.ID == uuid.Nil {
		return ErrSubtaskIDEmpty
	}

	if s.TaskID == uuid.Nil {
		return ErrSubtaskTaskEmpty
	}

	if s.Objective == "" {
		return ErrSubtaskObjectiveEmpty
	}

	if s.TargetScore <= 0 {
		return ErrSubtaskBadTarget
	}

	if s.MaxRounds <= 0 {
		return ErrSubtaskBadRounds
	}

	return nil
}
