package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/lightlogic3/popflow/internal/domain"
)

// Message is one entry of the conversation memory handed to the model
// collaborators, in creation order.
type Message struct {
	Role    domain.MessageRole `json:"role"`
	Content string             `json:"content"`
}

// ModelReply is the assistant response plus its usage accounting.
type ModelReply struct {
	Content      string
	InputTokens  int
	OutputTokens int
	ModelID      string
}

// ScoreDecision is the judge's structured verdict on one turn, produced
// through the single declared score_change tool.
type ScoreDecision struct {
	// ScoreChange is the signed delta to apply to the session score.
	ScoreChange int `json:"scoreChange"`

	// Reason is the judge's short justification for the delta.
	Reason string `json:"reason"`

	// IsAchieved is set when the judge considers the objective reached
	// regardless of the numeric score.
	IsAchieved bool `json:"isAchieved"`
}

// ChatModel produces the in-character assistant reply for a turn.
type ChatModel interface {
	Reply(ctx context.Context, objective string, memory []Message, userInput string) (*ModelReply, error)
}

// Judge scores a turn against the subtask objective. Implementations must
// constrain the model to the score_change tool schema so the decision is
// always structured.
type Judge interface {
	Score(ctx context.Context, objective string, memory []Message, userInput, reply string) (*ScoreDecision, error)
}

// SubtaskCreator generates a fresh subtask for a game task when the user
// has exhausted the existing pool.
type SubtaskCreator interface {
	CreateSubtask(ctx context.Context, taskID uuid.UUID) (*domain.Subtask, error)
}
