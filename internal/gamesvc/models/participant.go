package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Participant is a player account able to buy cards.
type Participant struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	TelegramChatID int64           `json:"telegram_chat_id,omitempty"`
	Balance        decimal.Decimal `json:"balance"`
	GamesPlayed    int             `json:"games_played"`
	GamesWon       int             `json:"games_won"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
