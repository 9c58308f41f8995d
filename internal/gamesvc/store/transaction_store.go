package store

import (
	"context"
	"fmt"

	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TransactionStore struct {
	db *pgxpool.Pool
}

func NewTransactionStore(db *pgxpool.Pool) *TransactionStore {
	return &TransactionStore{db: db}
}

func (s *TransactionStore) RecordTransaction(ctx context.Context, tx *models.Transaction) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO transactions (participant_id, kind, amount, round_id, card_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, tx.ParticipantID, string(tx.Kind), tx.Amount, tx.RoundID, tx.CardNumber, tx.CreatedAt).Scan(&tx.ID)
	if err != nil {
		return fmt.Errorf("failed to record %s transaction: %w", tx.Kind, err)
	}
	return nil
}

// ListTransactions returns a participant's ledger, newest first.
func (s *TransactionStore) ListTransactions(ctx context.Context, participantID int64, limit int) ([]*models.Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, participant_id, kind, amount, round_id, card_number, created_at
		FROM transactions
		WHERE participant_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, participantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return scanTransactions(rows)
}

// ListRoundTransactions returns one round's ledger entries of kind, oldest first.
func (s *TransactionStore) ListRoundTransactions(ctx context.Context, roundID int64, kind models.TransactionKind) ([]*models.Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, participant_id, kind, amount, round_id, card_number, created_at
		FROM transactions
		WHERE round_id = $1 AND kind = $2
		ORDER BY id
	`, roundID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s transactions of round %d: %w", kind, roundID, err)
	}
	return scanTransactions(rows)
}

func scanTransactions(rows pgx.Rows) ([]*models.Transaction, error) {
	defer rows.Close()

	var txs []*models.Transaction
	for rows.Next() {
		var (
			tx   models.Transaction
			kind string
		)
		if err := rows.Scan(&tx.ID, &tx.ParticipantID, &kind, &tx.Amount, &tx.RoundID, &tx.CardNumber, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.Kind = models.TransactionKind(kind)
		txs = append(txs, &tx)
	}
	return txs, rows.Err()
}
