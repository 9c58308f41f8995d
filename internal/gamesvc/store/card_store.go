package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/avvvet/bingo-rounds/internal/gamesvc/engine"
	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const cardColumns = `id, round_id, card_number, grid, marked, owner_participant_id, purchased_at, is_winning`

type CardStore struct {
	db *pgxpool.Pool
}

func NewCardStore(db *pgxpool.Pool) *CardStore {
	return &CardStore{db: db}
}

func scanCard(row pgx.Row) (*models.Card, error) {
	var (
		c            models.Card
		grid, marked []byte
	)
	err := row.Scan(
		&c.ID,
		&c.RoundID,
		&c.CardNumber,
		&grid,
		&marked,
		&c.OwnerParticipantID,
		&c.PurchasedAt,
		&c.IsWinning,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(grid, &c.Grid); err != nil {
		return nil, fmt.Errorf("decode grid of card %s: %w", c.ID, err)
	}
	if err := json.Unmarshal(marked, &c.Marked); err != nil {
		return nil, fmt.Errorf("decode marks of card %s: %w", c.ID, err)
	}
	return &c, nil
}

// BulkCreateCards copies a round's whole inventory in one round trip.
func (s *CardStore) BulkCreateCards(ctx context.Context, roundID int64, cards []*models.Card) error {
	rows := make([][]any, 0, len(cards))
	for _, c := range cards {
		grid, err := json.Marshal(c.Grid)
		if err != nil {
			return fmt.Errorf("encode grid of card %d: %w", c.CardNumber, err)
		}
		marked, err := json.Marshal(c.Marked)
		if err != nil {
			return fmt.Errorf("encode marks of card %d: %w", c.CardNumber, err)
		}
		rows = append(rows, []any{c.ID, roundID, c.CardNumber, grid, marked, c.OwnerParticipantID, c.PurchasedAt, c.IsWinning})
	}

	n, err := s.db.CopyFrom(ctx,
		pgx.Identifier{"cards"},
		[]string{"id", "round_id", "card_number", "grid", "marked", "owner_participant_id", "purchased_at", "is_winning"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to create cards of round %d: %w", roundID, err)
	}
	if int(n) != len(cards) {
		return fmt.Errorf("created %d of %d cards for round %d", n, len(cards), roundID)
	}
	return nil
}

// FindCard returns nil, nil when the card does not exist.
func (s *CardStore) FindCard(ctx context.Context, roundID int64, cardNumber int) (*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE round_id = $1 AND card_number = $2`

	c, err := scanCard(s.db.QueryRow(ctx, query, roundID, cardNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get card %d of round %d: %w", cardNumber, roundID, err)
	}
	return c, nil
}

func (s *CardStore) UpdateCard(ctx context.Context, id string, p models.CardPatch) error {
	var (
		sets []string
		args = []any{id}
	)
	set := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if p.OwnerParticipantID != nil {
		set("owner_participant_id", *p.OwnerParticipantID)
	}
	if p.PurchasedAt != nil {
		set("purchased_at", *p.PurchasedAt)
	}
	if p.IsWinning != nil {
		set("is_winning", *p.IsWinning)
	}
	if p.Marked != nil {
		data, err := json.Marshal(*p.Marked)
		if err != nil {
			return fmt.Errorf("encode marks: %w", err)
		}
		set("marked", data)
	}
	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE cards SET %s WHERE id = $1", strings.Join(sets, ", "))
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update card %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update card %s: %w", id, engine.ErrUnknownCard)
	}
	return nil
}

func (s *CardStore) FindPurchasedCards(ctx context.Context, roundID int64) ([]*models.Card, error) {
	query := `
		SELECT ` + cardColumns + `
		FROM cards
		WHERE round_id = $1 AND owner_participant_id IS NOT NULL
		ORDER BY card_number`

	rows, err := s.db.Query(ctx, query, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchased cards of round %d: %w", roundID, err)
	}
	defer rows.Close()

	var cards []*models.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func (s *CardStore) CountPurchasedCards(ctx context.Context, roundID, participantID int64) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM cards
		WHERE round_id = $1 AND owner_participant_id = $2
	`, roundID, participantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count cards of participant %d: %w", participantID, err)
	}
	return n, nil
}
