package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/avvvet/bingo-rounds/internal/gamesvc/engine"
	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type ParticipantStore struct {
	db *pgxpool.Pool
}

func NewParticipantStore(db *pgxpool.Pool) *ParticipantStore {
	return &ParticipantStore{db: db}
}

// UpsertParticipant creates the participant or refreshes its name and chat id.
// The balance is only set on insert.
func (s *ParticipantStore) UpsertParticipant(ctx context.Context, p models.Participant) (*models.Participant, error) {
	query := `
		INSERT INTO participants (id, name, telegram_chat_id, balance)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    telegram_chat_id = EXCLUDED.telegram_chat_id,
		    updated_at = NOW()
		RETURNING id, name, telegram_chat_id, balance, games_played, games_won, created_at, updated_at`

	out := &models.Participant{}
	err := s.db.QueryRow(ctx, query, p.ID, p.Name, p.TelegramChatID, p.Balance).Scan(
		&out.ID,
		&out.Name,
		&out.TelegramChatID,
		&out.Balance,
		&out.GamesPlayed,
		&out.GamesWon,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("could not upsert participant %d: %w", p.ID, err)
	}
	return out, nil
}

// FindParticipant returns nil, nil when the participant does not exist.
func (s *ParticipantStore) FindParticipant(ctx context.Context, id int64) (*models.Participant, error) {
	p := &models.Participant{}
	err := s.db.QueryRow(ctx, `
		SELECT id, name, telegram_chat_id, balance, games_played, games_won, created_at, updated_at
		FROM participants
		WHERE id = $1
	`, id).Scan(
		&p.ID,
		&p.Name,
		&p.TelegramChatID,
		&p.Balance,
		&p.GamesPlayed,
		&p.GamesWon,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get participant %d: %w", id, err)
	}
	return p, nil
}

// AdjustBalance applies delta in one conditional update so a debit can
// never take the balance below zero.
func (s *ParticipantStore) AdjustBalance(ctx context.Context, id int64, delta decimal.Decimal) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE participants
		SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1 AND balance + $2 >= 0
	`, id, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust balance of participant %d: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM participants WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check participant %d: %w", id, err)
	}
	if !exists {
		return engine.ErrUnknownParticipant
	}
	return engine.ErrInsufficientBalance
}

func (s *ParticipantStore) IncrementCounters(ctx context.Context, id int64, played, won int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE participants
		SET games_played = games_played + $2,
		    games_won = games_won + $3,
		    updated_at = NOW()
		WHERE id = $1
	`, id, played, won)
	if err != nil {
		return fmt.Errorf("failed to update counters of participant %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrUnknownParticipant
	}
	return nil
}
