package engine

import (
	"context"
	"time"

	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
	"github.com/shopspring/decimal"
)

// Repository is the storage collaborator.
type Repository interface {
	// CreateRound persists a new round and returns it with its id assigned.
	CreateRound(ctx context.Context, draft models.Round) (*models.Round, error)
	UpdateRound(ctx context.Context, id int64, patch models.RoundPatch) error
	// ListLiveRounds returns rounds still scheduled or active, oldest first.
	ListLiveRounds(ctx context.Context) ([]*models.Round, error)

	BulkCreateCards(ctx context.Context, roundID int64, cards []*models.Card) error
	FindCard(ctx context.Context, roundID int64, cardNumber int) (*models.Card, error)
	UpdateCard(ctx context.Context, id string, patch models.CardPatch) error
	FindPurchasedCards(ctx context.Context, roundID int64) ([]*models.Card, error)
	CountPurchasedCards(ctx context.Context, roundID, participantID int64) (int, error)

	// FindParticipant returns nil, nil when the participant does not exist.
	FindParticipant(ctx context.Context, id int64) (*models.Participant, error)
	// AdjustBalance applies delta and fails with ErrInsufficientBalance
	// instead of letting the balance go negative.
	AdjustBalance(ctx context.Context, id int64, delta decimal.Decimal) error
	IncrementCounters(ctx context.Context, id int64, played, won int) error

	RecordTransaction(ctx context.Context, tx *models.Transaction) error
	// ListRoundTransactions returns one round's ledger entries of kind, oldest first.
	ListRoundTransactions(ctx context.Context, roundID int64, kind models.TransactionKind) ([]*models.Transaction, error)
}

// Broadcaster is the snapshot/broadcast channel.
type Broadcaster interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Publish(ctx context.Context, event Event) error
}

// Notifier delivers best-effort participant notifications.
// A participant without a destination is not an error.
type Notifier interface {
	Notify(ctx context.Context, participantID int64, eventType EventType, payload any) error
}
