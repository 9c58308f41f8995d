package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avvvet/bingo-rounds/internal/gamesvc/engine"
	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const roundColumns = `id, seed, status, scheduled_start, actual_start, end_time, pot,
	bet_amount, house_fee_fraction, duration_ms, max_cards_per_participant, min_participants,
	draw_interval_ms, pre_roll_ms, called_numbers, winner_participant_id, winning_card_number,
	end_reason, created_at, updated_at`

type RoundStore struct {
	db *pgxpool.Pool
}

func NewRoundStore(db *pgxpool.Pool) *RoundStore {
	return &RoundStore{db: db}
}

func scanRound(row pgx.Row) (*models.Round, error) {
	var (
		r                             models.Round
		status                        string
		durationMs, drawMs, preRollMs int64
		called                        []byte
	)
	err := row.Scan(
		&r.ID,
		&r.Seed,
		&status,
		&r.ScheduledStart,
		&r.ActualStart,
		&r.EndTime,
		&r.Pot,
		&r.Config.BetAmount,
		&r.Config.HouseFeeFraction,
		&durationMs,
		&r.Config.MaxCardsPerParticipant,
		&r.Config.MinParticipants,
		&drawMs,
		&preRollMs,
		&called,
		&r.WinnerParticipantID,
		&r.WinningCardNumber,
		&r.EndReason,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Status = models.RoundStatus(status)
	r.Config.Duration = time.Duration(durationMs) * time.Millisecond
	r.Config.DrawInterval = time.Duration(drawMs) * time.Millisecond
	r.Config.PreRoll = time.Duration(preRollMs) * time.Millisecond
	if err := json.Unmarshal(called, &r.CalledNumbers); err != nil {
		return nil, fmt.Errorf("decode called numbers of round %d: %w", r.ID, err)
	}
	if r.CalledNumbers == nil {
		r.CalledNumbers = []models.Draw{}
	}
	return &r, nil
}

func (s *RoundStore) CreateRound(ctx context.Context, draft models.Round) (*models.Round, error) {
	called, err := json.Marshal(draft.CalledNumbers)
	if err != nil {
		return nil, fmt.Errorf("encode called numbers: %w", err)
	}
	if draft.CalledNumbers == nil {
		called = []byte("[]")
	}

	query := `
		INSERT INTO rounds (seed, status, scheduled_start, pot, bet_amount, house_fee_fraction,
			duration_ms, max_cards_per_participant, min_participants, draw_interval_ms, pre_roll_ms,
			called_numbers)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + roundColumns

	cfg := draft.Config
	r, err := scanRound(s.db.QueryRow(ctx, query,
		draft.Seed,
		string(draft.Status),
		draft.ScheduledStart,
		draft.Pot,
		cfg.BetAmount,
		cfg.HouseFeeFraction,
		cfg.Duration.Milliseconds(),
		cfg.MaxCardsPerParticipant,
		cfg.MinParticipants,
		cfg.DrawInterval.Milliseconds(),
		cfg.PreRoll.Milliseconds(),
		called,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create round: %w", err)
	}
	return r, nil
}

// UpdateRound writes the non-nil fields of patch.
func (s *RoundStore) UpdateRound(ctx context.Context, id int64, p models.RoundPatch) error {
	if p.Empty() {
		return nil
	}

	var (
		sets []string
		args = []any{id}
	)
	set := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if p.Status != nil {
		set("status", string(*p.Status))
	}
	if p.ActualStart != nil {
		set("actual_start", *p.ActualStart)
	}
	if p.EndTime != nil {
		set("end_time", *p.EndTime)
	}
	if p.Pot != nil {
		set("pot", *p.Pot)
	}
	if p.CalledNumbers != nil {
		data, err := json.Marshal(p.CalledNumbers)
		if err != nil {
			return fmt.Errorf("encode called numbers: %w", err)
		}
		set("called_numbers", data)
	}
	if p.WinnerParticipantID != nil {
		set("winner_participant_id", *p.WinnerParticipantID)
	}
	if p.WinningCardNumber != nil {
		set("winning_card_number", *p.WinningCardNumber)
	}
	if p.EndReason != nil {
		set("end_reason", *p.EndReason)
	}
	sets = append(sets, "updated_at = NOW()")

	query := fmt.Sprintf("UPDATE rounds SET %s WHERE id = $1", strings.Join(sets, ", "))
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update round %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update round %d: %w", id, engine.ErrRoundNotFound)
	}
	return nil
}

// GetRound returns nil, nil when the round does not exist.
func (s *RoundStore) GetRound(ctx context.Context, id int64) (*models.Round, error) {
	r, err := scanRound(s.db.QueryRow(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get round %d: %w", id, err)
	}
	return r, nil
}

func (s *RoundStore) ListLiveRounds(ctx context.Context) ([]*models.Round, error) {
	return s.listRounds(ctx, `
		SELECT `+roundColumns+`
		FROM rounds
		WHERE status IN ('scheduled', 'active')
		ORDER BY id`)
}

// ListRecentRounds returns the newest finished rounds first.
func (s *RoundStore) ListRecentRounds(ctx context.Context, limit int) ([]*models.Round, error) {
	return s.listRounds(ctx, `
		SELECT `+roundColumns+`
		FROM rounds
		WHERE status IN ('completed', 'cancelled')
		ORDER BY id DESC
		LIMIT $1`, limit)
}

func (s *RoundStore) listRounds(ctx context.Context, query string, args ...any) ([]*models.Round, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	defer rows.Close()

	var rounds []*models.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}
