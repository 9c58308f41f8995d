package store

import (
	"github.com/avvvet/bingo-rounds/internal/gamesvc/engine"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository groups the table stores into the engine's storage collaborator.
type Repository struct {
	*RoundStore
	*CardStore
	*ParticipantStore
	*TransactionStore
}

var _ engine.Repository = (*Repository)(nil)

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		RoundStore:       NewRoundStore(db),
		CardStore:        NewCardStore(db),
		ParticipantStore: NewParticipantStore(db),
		TransactionStore: NewTransactionStore(db),
	}
}
