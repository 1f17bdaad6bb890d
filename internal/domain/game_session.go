package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// GameStatus represents the state of a game session. Values are stored as
// small integers in the database.
type GameStatus int

// Possible game session states.
const (
	GameStatusInProgress  GameStatus = 0
	GameStatusCompleted   GameStatus = 1
	GameStatusInterrupted GameStatus = 2
	GameStatusTimedOut    GameStatus = 3
)

// String returns a human-readable name for the status.
func (s GameStatus) String() string {
	switch s {
	case GameStatusInProgress:
		return "in_progress"
	case GameStatusCompleted:
		return "completed"
	case GameStatusInterrupted:
		return "interrupted"
	case GameStatusTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// IsTerminal reports whether the status permits no further transitions.
func (s GameStatus) IsTerminal() bool {
	return s != GameStatusInProgress
}

// Game session validation and transition errors.
var (
	ErrGameSessionIDEmpty    = errors.New("game session ID cannot be empty")
	ErrGameSessionUserEmpty  = errors.New("game session user ID cannot be empty")
	ErrGameSessionSubtaskNil = errors.New("game session subtask ID cannot be empty")
	ErrInvalidGameStatus     = errors.New("invalid game session status")
	ErrGameSessionEnded      = errors.New("game session has already ended")
	ErrSummaryAlreadySet     = errors.New("completion summary is already set")
)

// GameSession is the durable, authoritative scoring/round/status record
// paired with a cached conversation session.
//
// Invariants: once the status leaves in-progress, score/round/status are
// immutable and the completion summary is set exactly once; the round
// counter is monotonically non-decreasing; the score changes only while
// the session is in progress.
type GameSession struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	SubtaskID       uuid.UUID  `json:"subtask_id"`
	TaskID          uuid.UUID  `json:"task_id"`
	Status          GameStatus `json:"status"`
	CurrentScore    int        `json:"current_score"`
	CurrentRound    int        `json:"current_round"`
	MaxRounds       int        `json:"max_rounds"`
	TargetScore     int        `json:"target_score"`
	LastMessageTime time.Time  `json:"last_message_time"`
	Summary         string     `json:"summary,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewGameSession creates an in-progress session for the given user and
// subtask. The round counter starts at 1: it names the round about to be
// played, not the number of rounds finished.
func NewGameSession(userID, subtaskID, taskID uuid.UUID, targetScore, maxRounds int) (*GameSession, error) {
	now := time.Now().UTC()
	gs := &GameSession{
		ID:              uuid.New(),
		UserID:          userID,
		SubtaskID:       subtaskID,
		TaskID:          taskID,
		Status:          GameStatusInProgress,
		CurrentScore:    0,
		CurrentRound:    1,
		MaxRounds:       maxRounds,
		TargetScore:     targetScore,
		LastMessageTime: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := gs.Validate(); err != nil {
		return nil, err
	}

	return gs, nil
}

// Validate checks if the GameSession has valid data.
func (gs *GameSession) Validate() error {
	if gs.ID == uuid.Nil {
		return ErrGameSessionIDEmpty
	}

	if gs.UserID == uuid.Nil {
		return ErrGameSessionUserEmpty
	}

	if gs.SubtaskID == uuid.Nil {
		return ErrGameSessionSubtaskNil
	}

	if gs.Status < GameStatusInProgress || gs.Status > GameStatusTimedOut {
		return ErrInvalidGameStatus
	}

	return nil
}

// ApplyScore advances the session by one scored turn: the score change is
// added and the round counter incremented. Returns ErrGameSessionEnded if
// the session is already terminal.
func (gs *GameSession) ApplyScore(scoreChange int) error {
	if gs.Status.IsTerminal() {
		return ErrGameSessionEnded
	}

	gs.CurrentScore += scoreChange
	gs.CurrentRound++
	gs.LastMessageTime = time.Now().UTC()
	gs.UpdatedAt = gs.LastMessageTime
	return nil
}

// Complete moves the session into a terminal state with the given summary.
// It is an error to complete a session twice.
func (gs *GameSession) Complete(status GameStatus, summary string) error {
	if !status.IsTerminal() {
		return ErrInvalidGameStatus
	}

	if gs.Status.IsTerminal() {
		return ErrGameSessionEnded
	}

	if gs.Summary != "" {
		return ErrSummaryAlreadySet
	}

	gs.Status = status
	gs.Summary = summary
	gs.UpdatedAt = time.Now().UTC()
	return nil
}

// IsWin reports whether the session ended with the goal reached.
func (gs *GameSession) IsWin() bool {
	return gs.Status == GameStatusCompleted
}

// IsFailed reports whether the session ended without reaching the goal.
func (gs *GameSession) IsFailed() bool {
	return gs.Status == GameStatusInterrupted || gs.Status == GameStatusTimedOut
}
