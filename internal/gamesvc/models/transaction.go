package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	TransactionBet    TransactionKind = "bet"
	TransactionWin    TransactionKind = "win"
	TransactionRefund TransactionKind = "refund"
)

// Transaction is a ledger entry emitted by the engine for every balance movement.
type Transaction struct {
	ID            int64           `json:"id"`
	ParticipantID int64           `json:"participant_id"`
	Kind          TransactionKind `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	RoundID       int64           `json:"round_id"`
	CardNumber    int             `json:"card_number"`
	CreatedAt     time.Time       `json:"created_at"`
}
