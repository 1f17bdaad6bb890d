package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/lightlogic3/popflow/internal/domain"
	"github.com/lightlogic3/popflow/internal/platform/logger"
	"github.com/lightlogic3/popflow/internal/store"
)

// PostgresGameMessageStore implements the store.GameMessageStore interface
// using PostgreSQL. The message log is append-only.
type PostgresGameMessageStore struct {
	db store.DBTX
}

// NewPostgresGameMessageStore creates a new PostgresGameMessageStore.
func NewPostgresGameMessageStore(db store.DBTX) *PostgresGameMessageStore {
	return &PostgresGameMessageStore{
		db: db,
	}
}

// Create appends a message to the log.
func (s *PostgresGameMessageStore) Create(ctx context.Context, msg *domain.GameMessage) error {
	log := logger.FromContext(ctx)

	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO game_messages (id, session_id, role, content, round,
		                           score_change, score_reason, input_tokens,
		                           output_tokens, model_id, create_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.SessionID,
		msg.Role,
		msg.Content,
		msg.Round,
		msg.ScoreChange,
		msg.ScoreReason,
		msg.InputTokens,
		msg.OutputTokens,
		msg.ModelID,
		msg.CreateTime,
	)

	if err != nil {
		log.Error("failed to append game message",
			"message_id", msg.ID,
			"session_id", msg.SessionID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// ListBySession retrieves every message of a session in creation order.
func (s *PostgresGameMessageStore) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domain.GameMessage, error) {
	query := `
		SELECT id, session_id, role, content, round, score_change,
		       score_reason, input_tokens, output_tokens, model_id, create_time
		FROM game_messages
		WHERE session_id = $1
		ORDER BY create_time, id
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []*domain.GameMessage
	for rows.Next() {
		var msg domain.GameMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.SessionID,
			&msg.Role,
			&msg.Content,
			&msg.Round,
			&msg.ScoreChange,
			&msg.ScoreReason,
			&msg.InputTokens,
			&msg.OutputTokens,
			&msg.ModelID,
			&msg.CreateTime,
		); err != nil {
			return nil, fmt.Errorf("failed to scan game message row: %w", err)
		}
		msgs = append(msgs, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return msgs, nil
}

// WithTx returns a new GameMessageStore instance that uses the provided
// transaction.
func (s *PostgresGameMessageStore) WithTx(tx *sql.Tx) store.GameMessageStore {
	return &PostgresGameMessageStore{db: tx}
}
