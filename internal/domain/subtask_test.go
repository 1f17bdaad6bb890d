package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSubtask(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		st, err := NewSubtask(uuid.New(), "guard", "convince the guard", 30, 3)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, st.ID)
		assert.False(t, st.CreatedAt.IsZero())
	})

	t.Run("title is optional", func(t *testing.T) {
		t.Parallel()
		_, err := NewSubtask(uuid.New(), "", "convince the guard", 30, 3)
		assert.NoError(t, err)
	})

	t.Run("invalid fields", func(t *testing.T) {
		t.Parallel()

		_, err := NewSubtask(uuid.Nil, "t", "objective", 30, 3)
		assert.ErrorIs(t, err, ErrSubtaskTaskEmpty)

		_, err = NewSubtask(uuid.New(), "t", "", 30, 3)
		assert.ErrorIs(t, err, ErrSubtaskObjectiveEmpty)

		_, err = NewSubtask(uuid.New(), "t", "objective", 0, 3)
		assert.ErrorIs(t, err, ErrSubtaskBadTarget)

		_, err = NewSubtask(uuid.New(), "t", "objective", 30, 0)
		assert.ErrorIs(t, err, ErrSubtaskBadRounds)
	})
}

func TestNewGameMessage(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		msg, err := NewGameMessage(uuid.New(), RoleAssistant, "certainly", 2)
		require.NoError(t, err)
		assert.Equal(t, RoleAssistant, msg.Role)
		assert.Equal(t, 2, msg.Round)
		assert.False(t, msg.CreateTime.IsZero())
	})

	t.Run("invalid fields", func(t *testing.T) {
		t.Parallel()

		_, err := NewGameMessage(uuid.Nil, RoleUser, "hi", 1)
		assert.ErrorIs(t, err, ErrMessageSessionEmpty)

		_, err = NewGameMessage(uuid.New(), RoleUser, "", 1)
		assert.ErrorIs(t, err, ErrMessageContentEmpty)

		_, err = NewGameMessage(uuid.New(), MessageRole("narrator"), "hi", 1)
		assert.ErrorIs(t, err, ErrInvalidMessageRole)
	})
}
