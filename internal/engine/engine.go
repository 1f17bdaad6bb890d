package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lightlogic3/popflow/internal/domain"
	"github.com/lightlogic3/popflow/internal/events"
	"github.com/lightlogic3/popflow/internal/session"
	"github.com/lightlogic3/popflow/internal/store"
)

// Caller-visible engine errors. Handlers map these to structured
// responses that route the user to a recovery action.
var (
	// ErrSessionNotFound indicates no session, cached or durable, exists
	// for the requested id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoSubtaskAvailable indicates subtask selection found nothing and
	// generation was not possible.
	ErrNoSubtaskAvailable = errors.New("no subtask available")
)

// End reasons written into the completion summary.
const (
	ReasonGoalAchieved  = "goal achieved"
	ReasonTargetReached = "target score reached"
	ReasonRoundLimit    = "round limit reached"
)

// SelectMode chooses how Init resolves the subtask to play.
type SelectMode string

// Subtask resolution modes.
const (
	// SelectExplicit plays the subtask named in SubtaskSelection.SubtaskID.
	SelectExplicit SelectMode = "explicit"

	// SelectContinue resumes the user's oldest in-progress subtask,
	// falling back to SelectRandom when there is none.
	SelectContinue SelectMode = "continue"

	// SelectRandom picks a random subtask the user has not finished,
	// falling back to generation when everything is done.
	SelectRandom SelectMode = "random"

	// SelectCreate always generates a fresh subtask.
	SelectCreate SelectMode = "create"
)

// SubtaskSelection names the subtask to play, directly or by mode.
type SubtaskSelection struct {
	Mode      SelectMode
	SubtaskID uuid.UUID
	TaskID    uuid.UUID
}

// Config holds game engine tuning knobs.
type Config struct {
	// Namespace is the session cache namespace for game chats.
	Namespace string

	// CreateRetries bounds attempts at generating a fresh subtask.
	CreateRetries int
}

// DefaultConfig returns engine defaults.
func DefaultConfig() Config {
	return Config{
		Namespace:     "game",
		CreateRetries: 3,
	}
}

// Engine is the scoring state machine for game chat sessions. The cache
// is the fast path; the relational store is authoritative for score,
// round, and status. Message-log writes are deferred through the event
// emitter; status-critical writes are synchronous.
type Engine struct {
	sessions *session.Store
	games    store.GameSessionStore
	messages store.GameMessageStore
	subtasks store.SubtaskStore
	model    ChatModel
	judge    Judge
	creator  SubtaskCreator
	emitter  events.EventEmitter
	config   Config
	logger   *slog.Logger
}

// NewEngine wires the engine's stores and collaborators.
func NewEngine(
	sessions *session.Store,
	games store.GameSessionStore,
	messages store.GameMessageStore,
	subtasks store.SubtaskStore,
	model ChatModel,
	judge Judge,
	creator SubtaskCreator,
	emitter events.EventEmitter,
	config Config,
	logger *slog.Logger,
) *Engine {
	if config.Namespace == "" {
		config.Namespace = DefaultConfig().Namespace
	}
	if config.CreateRetries <= 0 {
		config.CreateRetries = DefaultConfig().CreateRetries
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		sessions: sessions,
		games:    games,
		messages: messages,
		subtasks: subtasks,
		model:    model,
		judge:    judge,
		creator:  creator,
		emitter:  emitter,
		config:   config,
		logger:   logger.With("component", "game_engine"),
	}
}

// cachedState is the engine's session payload inside the cache record's
// data map.
type cachedState struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	SubtaskID uuid.UUID `json:"subtask_id"`
	Objective string    `json:"objective"`
	Status    int       `json:"status"`
	Memory    []Message `json:"memory,omitempty"`

	// createdAt carries the cache record's original creation time across
	// read-modify-write cycles. Zero means the record is new.
	createdAt time.Time
}

// InitResult describes the session a user is about to play.
type InitResult struct {
	Session *domain.GameSession `json:"session"`
	Subtask *domain.Subtask     `json:"subtask"`

	// Resumed is set when Init found an existing in-progress session for
	// the resolved subtask instead of starting a new one.
	Resumed bool `json:"resumed"`
}

// Init resolves or creates the subtask to play, seeds the durable game
// session row and the cached session, and links the subtask to the user.
// If the user already has an in-progress session for the resolved
// subtask, that session is resumed instead of duplicated.
func (e *Engine) Init(ctx context.Context, userID uuid.UUID, sel SubtaskSelection) (*InitResult, error) {
	subtask, err := e.resolveSubtask(ctx, userID, sel)
	if err != nil {
		return nil, err
	}

	if existing, err := e.games.FindInProgressByUser(ctx, userID, subtask.ID); err == nil {
		if _, err := e.resurrect(ctx, existing, subtask); err != nil {
			return nil, err
		}
		return &InitResult{Session: existing, Subtask: subtask, Resumed: true}, nil
	} else if !store.IsNotFoundError(err) {
		return nil, fmt.Errorf("look up in-progress session: %w", err)
	}

	gs, err := domain.NewGameSession(userID, subtask.ID, subtask.TaskID, subtask.TargetScore, subtask.MaxRounds)
	if err != nil {
		return nil, err
	}
	if err := e.games.Create(ctx, gs); err != nil {
		return nil, fmt.Errorf("create game session: %w", err)
	}
	if err := e.subtasks.LinkUser(ctx, userID, subtask.ID); err != nil {
		return nil, fmt.Errorf("link subtask to user: %w", err)
	}

	if err := e.saveState(ctx, &cachedState{
		SessionID: gs.ID,
		UserID:    userID,
		SubtaskID: subtask.ID,
		Objective: subtask.Objective,
		Status:    int(gs.Status),
	}, 0); err != nil {
		return nil, err
	}

	e.logger.Info("game session initialized",
		"session_id", gs.ID,
		"user_id", userID,
		"subtask_id", subtask.ID,
		"target_score", gs.TargetScore,
		"max_rounds", gs.MaxRounds)

	return &InitResult{Session: gs, Subtask: subtask}, nil
}

// ChatInput is one user turn.
type ChatInput struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
	Content   string
}

// ChatResult is the outcome of one turn. When Ended is set the session
// reached a terminal state on this turn (or was already terminal, in
// which case Notice carries the rejection message and nothing was
// mutated).
type ChatResult struct {
	SessionID    uuid.UUID         `json:"session_id"`
	Reply        string            `json:"reply,omitempty"`
	Notice       string            `json:"notice,omitempty"`
	ScoreChange  int               `json:"score_change"`
	ScoreReason  string            `json:"score_reason,omitempty"`
	CurrentScore int               `json:"current_score"`
	CurrentRound int               `json:"current_round"`
	TargetScore  int               `json:"target_score"`
	MaxRounds    int               `json:"max_rounds"`
	Status       domain.GameStatus `json:"status"`
	Ended        bool              `json:"ended"`
	EndReason    string            `json:"end_reason,omitempty"`
	IsWin        bool              `json:"is_win"`
	IsFailed     bool              `json:"is_failed"`
}

// Chat plays one turn: reply, judge, score, transition, persist. The
// score/round/status write is synchronous and atomic; the two message
// rows are deferred to background persistence. A terminal session is
// rejected with a structured notice and no mutation.
func (e *Engine) Chat(ctx context.Context, in ChatInput) (*ChatResult, error) {
	if in.Content == "" {
		return nil, fmt.Errorf("chat content cannot be empty")
	}

	gs, state, err := e.loadSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}

	// A session id is only meaningful to its owner; other callers get the
	// same answer as a missing session.
	if in.UserID != gs.UserID {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, in.SessionID)
	}

	if gs.Status.IsTerminal() {
		return e.terminalResult(gs), nil
	}

	round := gs.CurrentRound

	reply, err := e.model.Reply(ctx, state.Objective, state.Memory, in.Content)
	if err != nil {
		return nil, fmt.Errorf("model reply: %w", err)
	}

	decision, err := e.judge.Score(ctx, state.Objective, state.Memory, in.Content, reply.Content)
	if err != nil {
		return nil, fmt.Errorf("judge score: %w", err)
	}

	if err := gs.ApplyScore(decision.ScoreChange); err != nil {
		return nil, err
	}

	endReason := ""
	switch {
	case decision.IsAchieved:
		endReason = ReasonGoalAchieved
		err = gs.Complete(domain.GameStatusCompleted, endReason)
	case gs.CurrentScore >= gs.TargetScore:
		endReason = ReasonTargetReached
		err = gs.Complete(domain.GameStatusCompleted, endReason)
	case gs.CurrentRound > gs.MaxRounds:
		endReason = ReasonRoundLimit
		err = gs.Complete(domain.GameStatusInterrupted, endReason)
	}
	if err != nil {
		return nil, err
	}

	// Status-critical write: atomic, guarded on the row still being in
	// progress. A rejected guard means a concurrent writer ended the
	// session first.
	if err := e.games.UpdateProgress(ctx, gs); err != nil {
		return nil, fmt.Errorf("persist session progress: %w", err)
	}

	e.deferMessages(ctx, gs, round, in.Content, reply, decision)

	if gs.Status.IsTerminal() {
		if err := e.subtasks.MarkCompleted(ctx, gs.UserID, gs.SubtaskID); err != nil {
			// The turn is already committed; a stale link only affects
			// future subtask selection.
			e.logger.Warn("failed to mark subtask completion link",
				"session_id", gs.ID, "subtask_id", gs.SubtaskID, "error", err)
		}
		e.compactState(ctx, state, gs)
	} else {
		state.Memory = append(state.Memory,
			Message{Role: domain.RoleUser, Content: in.Content},
			Message{Role: domain.RoleAssistant, Content: reply.Content},
		)
		state.Status = int(gs.Status)
		if err := e.saveState(ctx, state, len(state.Memory)); err != nil {
			// The durable row is authoritative; a stale cache rebuilds on
			// the next resurrection.
			e.logger.Warn("failed to update cached session",
				"session_id", gs.ID, "error", err)
		}
	}

	result := e.result(gs, endReason)
	result.Reply = reply.Content
	result.ScoreChange = decision.ScoreChange
	result.ScoreReason = decision.Reason
	return result, nil
}

// resolveSubtask applies the selection mode, falling through from
// continue to random to generation as pools run dry.
func (e *Engine) resolveSubtask(ctx context.Context, userID uuid.UUID, sel SubtaskSelection) (*domain.Subtask, error) {
	switch sel.Mode {
	case SelectExplicit:
		if sel.SubtaskID == uuid.Nil {
			return nil, fmt.Errorf("explicit selection requires a subtask id")
		}
		return e.subtasks.GetByID(ctx, sel.SubtaskID)

	case SelectCreate:
		return e.createSubtask(ctx, sel.TaskID)

	case SelectContinue, "":
		st, err := e.subtasks.FirstInProgressForUser(ctx, userID)
		if err == nil {
			return st, nil
		}
		if !store.IsNotFoundError(err) {
			return nil, err
		}
		fallthrough

	case SelectRandom:
		st, err := e.subtasks.RandomUnfinishedForUser(ctx, userID)
		if err == nil {
			return st, nil
		}
		if !store.IsNotFoundError(err) {
			return nil, err
		}
		if sel.TaskID == uuid.Nil {
			return nil, ErrNoSubtaskAvailable
		}
		return e.createSubtask(ctx, sel.TaskID)
	}

	return nil, fmt.Errorf("unknown subtask selection mode %q", sel.Mode)
}

// createSubtask asks the generation collaborator for a fresh subtask,
// retrying a bounded number of times before giving up.
func (e *Engine) createSubtask(ctx context.Context, taskID uuid.UUID) (*domain.Subtask, error) {
	if taskID == uuid.Nil {
		return nil, fmt.Errorf("%w: generation requires a task id", ErrNoSubtaskAvailable)
	}

	var lastErr error
	for attempt := 1; attempt <= e.config.CreateRetries; attempt++ {
		st, err := e.creator.CreateSubtask(ctx, taskID)
		if err != nil {
			lastErr = err
			e.logger.Warn("subtask generation attempt failed",
				"task_id", taskID, "attempt", attempt, "error", err)
			continue
		}
		if err := e.subtasks.Create(ctx, st); err != nil {
			return nil, fmt.Errorf("save generated subtask: %w", err)
		}
		return st, nil
	}
	return nil, fmt.Errorf("%w: generation failed after %d attempts: %v",
		ErrNoSubtaskAvailable, e.config.CreateRetries, lastErr)
}

// loadSession returns the authoritative session row plus the cached
// state, resurrecting the cache from the durable store on a miss.
func (e *Engine) loadSession(ctx context.Context, sessionID uuid.UUID) (*domain.GameSession, *cachedState, error) {
	gs, err := e.games.GetByID(ctx, sessionID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, nil, fmt.Errorf("load game session: %w", err)
	}

	rec, err := e.sessions.Get(ctx, e.config.Namespace, sessionID.String())
	if err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) {
			return nil, nil, fmt.Errorf("load cached session: %w", err)
		}
		state, err := e.resurrect(ctx, gs, nil)
		if err != nil {
			return nil, nil, err
		}
		return gs, state, nil
	}

	state, err := decodeState(rec)
	if err != nil {
		// Undecodable cache entries are rebuilt from the durable log.
		e.logger.Warn("rebuilding undecodable cached session",
			"session_id", sessionID, "error", err)
		state, rerr := e.resurrect(ctx, gs, nil)
		if rerr != nil {
			return nil, nil, rerr
		}
		return gs, state, nil
	}
	return gs, state, nil
}

// resurrect rebuilds the cached session from the durable store: the
// conversation memory is replayed from the message log in creation
// order, then the cache is reseeded. subtask may be nil, in which case
// it is loaded.
func (e *Engine) resurrect(ctx context.Context, gs *domain.GameSession, subtask *domain.Subtask) (*cachedState, error) {
	if subtask == nil {
		st, err := e.subtasks.GetByID(ctx, gs.SubtaskID)
		if err != nil {
			return nil, fmt.Errorf("load subtask for resurrection: %w", err)
		}
		subtask = st
	}

	msgs, err := e.messages.ListBySession(ctx, gs.ID)
	if err != nil {
		return nil, fmt.Errorf("replay message log: %w", err)
	}

	memory := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
			continue
		}
		memory = append(memory, Message{Role: m.Role, Content: m.Content})
	}

	state := &cachedState{
		SessionID: gs.ID,
		UserID:    gs.UserID,
		SubtaskID: gs.SubtaskID,
		Objective: subtask.Objective,
		Status:    int(gs.Status),
		Memory:    memory,
	}
	if err := e.saveState(ctx, state, len(memory)); err != nil {
		return nil, err
	}

	e.logger.Info("session resurrected from durable store",
		"session_id", gs.ID, "messages_replayed", len(msgs))
	return state, nil
}

// deferMessages hands the turn's two message rows to background
// persistence. Failure to even enqueue is logged and swallowed: a
// transient outage must not fail the user-facing turn.
func (e *Engine) deferMessages(ctx context.Context, gs *domain.GameSession, round int, userInput string, reply *ModelReply, decision *ScoreDecision) {
	userMsg, err := domain.NewGameMessage(gs.ID, domain.RoleUser, userInput, round)
	if err != nil {
		e.logger.Warn("failed to build user message row", "session_id", gs.ID, "error", err)
		return
	}
	userMsg.ScoreChange = decision.ScoreChange
	userMsg.ScoreReason = decision.Reason

	assistantMsg, err := domain.NewGameMessage(gs.ID, domain.RoleAssistant, reply.Content, round)
	if err != nil {
		e.logger.Warn("failed to build assistant message row", "session_id", gs.ID, "error", err)
		return
	}
	assistantMsg.InputTokens = reply.InputTokens
	assistantMsg.OutputTokens = reply.OutputTokens
	assistantMsg.ModelID = reply.ModelID

	event, err := events.NewTaskRequestEvent(events.TypePersistMessages, events.PersistMessagesPayload{
		Messages: []*domain.GameMessage{userMsg, assistantMsg},
	})
	if err != nil {
		e.logger.Warn("failed to build persist event", "session_id", gs.ID, "error", err)
		return
	}
	if err := e.emitter.EmitEvent(ctx, event); err != nil {
		e.logger.Warn("failed to emit persist event",
			"session_id", gs.ID, "event_id", event.ID, "error", err)
	}
}

// compactState keeps the cached session identity but drops the replayable
// memory once the session is terminal.
func (e *Engine) compactState(ctx context.Context, state *cachedState, gs *domain.GameSession) {
	state.Memory = nil
	state.Status = int(gs.Status)
	if err := e.saveState(ctx, state, 0); err != nil {
		e.logger.Warn("failed to compact cached session",
			"session_id", gs.ID, "error", err)
	}
}

func (e *Engine) terminalResult(gs *domain.GameSession) *ChatResult {
	result := e.result(gs, gs.Summary)
	result.Notice = fmt.Sprintf("session has ended (%s)", gs.Status)
	return result
}

func (e *Engine) result(gs *domain.GameSession, endReason string) *ChatResult {
	return &ChatResult{
		SessionID:    gs.ID,
		CurrentScore: gs.CurrentScore,
		CurrentRound: gs.CurrentRound,
		TargetScore:  gs.TargetScore,
		MaxRounds:    gs.MaxRounds,
		Status:       gs.Status,
		Ended:        gs.Status.IsTerminal(),
		EndReason:    endReason,
		IsWin:        gs.IsWin(),
		IsFailed:     gs.IsFailed(),
	}
}

// saveState writes the engine state into the session cache.
func (e *Engine) saveState(ctx context.Context, state *cachedState, messageCount int) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}

	if state.createdAt.IsZero() {
		state.createdAt = time.Now().UTC()
	}
	rec := &session.Record{
		ID:           state.SessionID.String(),
		Data:         data,
		MessageCount: messageCount,
		CreatedAt:    state.createdAt,
	}
	if err := e.sessions.Save(ctx, e.config.Namespace, rec); err != nil {
		return fmt.Errorf("write cached session: %w", err)
	}
	return nil
}

func encodeState(state *cachedState) (map[string]any, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode session state: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("encode session state: %w", err)
	}
	return data, nil
}

func decodeState(rec *session.Record) (*cachedState, error) {
	raw, err := json.Marshal(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	var state cachedState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	if state.SessionID == uuid.Nil {
		return nil, fmt.Errorf("decode session state: missing session id")
	}
	state.createdAt = rec.CreatedAt
	return &state, nil
}
