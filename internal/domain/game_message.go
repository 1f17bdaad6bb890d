package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// MessageRole identifies the author of a game message.
type MessageRole string

// Possible message roles.
const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleFunction  MessageRole = "function"
)

// Game message validation errors.
var (
	ErrMessageIDEmpty      = errors.New("game message ID cannot be empty")
	ErrMessageSessionEmpty = errors.New("game message session ID cannot be empty")
	ErrMessageContentEmpty = errors.New("game message content cannot be empty")
	ErrInvalidMessageRole  = errors.New("invalid game message role")
)

// GameMessage is one entry in the append-only conversation log of a game
// session. Messages are replayed in creation order to reconstruct the
// conversation memory after cache eviction.
type GameMessage struct {
	ID           uuid.UUID   `json:"id"`
	SessionID    uuid.UUID   `json:"session_id"`
	Role         MessageRole `json:"role"`
	Content      string      `json:"content"`
	Round        int         `json:"round"`
	ScoreChange  int         `json:"score_change"`
	ScoreReason  string      `json:"score_reason,omitempty"`
	InputTokens  int         `json:"input_tokens"`
	OutputTokens int         `json:"output_tokens"`
	ModelID      string      `json:"model_id,omitempty"`
	CreateTime   time.Time   `json:"create_time"`
}

// NewGameMessage creates a message for the given session and round.
// Returns an error if validation fails.
func NewGameMessage(sessionID uuid.UUID, role MessageRole, content string, round int) (*GameMessage, error) {
	msg := &GameMessage{
		ID:         uuid.New(),
		SessionID:  sessionID,
		Role:       role,
		Content:    content,
		Round:      round,
		CreateTime: time.Now().UTC(),
	}

	if err := msg.Validate(); err != nil {
		return nil, err
	}

	return msg, nil
}

// Validate checks if the GameMessage has valid data.
func (m *GameMessage) Validate() error {
	if m.ID == uuid.Nil {
		return ErrMessageIDEmpty
	}

	if m.SessionID == uuid.Nil {
		return ErrMessageSessionEmpty
	}

	if m.Content == "" {
		return ErrMessageContentEmpty
	}

	switch m.Role {
	case RoleUser, RoleAssistant, RoleFunction:
	default:
		return ErrInvalidMessageRole
	}

	return nil
}
