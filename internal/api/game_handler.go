package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/lightlogic3/popflow/internal/api/middleware"
	"github.com/lightlogic3/popflow/internal/api/shared"
	"github.com/lightlogic3/popflow/internal/engine"
	"github.com/lightlogic3/popflow/internal/store"
)

// GameHandler handles game session API requests.
type GameHandler struct {
	engine    *engine.Engine
	validator *validator.Validate
}

// NewGameHandler creates a GameHandler over the game engine.
func NewGameHandler(eng *engine.Engine) *GameHandler {
	return &GameHandler{
		engine:    eng,
		validator: validator.New(),
	}
}

// Init handles POST /api/game/init.
func (h *GameHandler) Init(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req GameInitRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	sel := engine.SubtaskSelection{Mode: engine.SelectMode(req.Mode)}
	if req.SubtaskID != "" {
		sel.SubtaskID = uuid.MustParse(req.SubtaskID)
		if sel.Mode == "" {
			sel.Mode = engine.SelectExplicit
		}
	}
	if req.TaskID != "" {
		sel.TaskID = uuid.MustParse(req.TaskID)
	}

	result, err := h.engine.Init(r.Context(), userID, sel)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrNoSubtaskAvailable):
			shared.RespondWithError(w, r, http.StatusConflict, "No subtask available to play")
		case store.IsNotFoundError(err):
			shared.RespondWithError(w, r, http.StatusNotFound, "Subtask not found")
		default:
			slog.Error("game init failed", "error", err, "user_id", userID)
			shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to initialize game session")
		}
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// Chat handles POST /api/game/chat.
func (h *GameHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req GameChatRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	result, err := h.engine.Chat(r.Context(), engine.ChatInput{
		SessionID: uuid.MustParse(req.SessionID),
		UserID:    userID,
		Content:   req.Content,
	})
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrSessionNotFound):
			shared.RespondWithError(w, r, http.StatusNotFound, "Session not found")
		default:
			slog.Error("game chat failed", "error", err, "session_id", req.SessionID)
			shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to process chat turn")
		}
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, result)
}
