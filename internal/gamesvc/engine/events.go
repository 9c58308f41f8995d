package engine

import (
	"time"

	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventRoundCreated   EventType = "round-created"
	EventRoundCountdown EventType = "round-countdown"
	EventRoundStarted   EventType = "round-started"
	EventNumberCalled   EventType = "number-called"
	EventCardPurchased  EventType = "card-purchased"
	EventWinnerDeclared EventType = "winner-declared"
	EventRoundEnded     EventType = "round-ended"

	// participant-only notification, never broadcast
	EventCardRefunded EventType = "card-refunded"
)

// Event is an outbound engine event.
type Event interface {
	Type() EventType
	Round() int64
}

type RoundCreated struct {
	RoundID        int64           `json:"round_id"`
	ScheduledStart time.Time       `json:"scheduled_start"`
	BetAmount      decimal.Decimal `json:"bet_amount"`
}

func (e RoundCreated) Type() EventType { return EventRoundCreated }
func (e RoundCreated) Round() int64    { return e.RoundID }

type RoundCountdown struct {
	RoundID     int64 `json:"round_id"`
	SecondsLeft int   `json:"seconds_left"`
}

func (e RoundCountdown) Type() EventType { return EventRoundCountdown }
func (e RoundCountdown) Round() int64    { return e.RoundID }

type RoundStarted struct {
	RoundID        int64           `json:"round_id"`
	StartedAt      time.Time       `json:"started_at"`
	PurchasedCards int             `json:"purchased_cards"`
	Pot            decimal.Decimal `json:"pot"`
}

func (e RoundStarted) Type() EventType { return EventRoundStarted }
func (e RoundStarted) Round() int64    { return e.RoundID }

type NumberCalled struct {
	RoundID     int64       `json:"round_id"`
	Draw        models.Draw `json:"draw"`
	TotalCalled int         `json:"total_called"`
}

func (e NumberCalled) Type() EventType { return EventNumberCalled }
func (e NumberCalled) Round() int64    { return e.RoundID }

type CardPurchased struct {
	RoundID       int64           `json:"round_id"`
	ParticipantID int64           `json:"participant_id"`
	CardNumber    int             `json:"card_number"`
	NewPot        decimal.Decimal `json:"new_pot"`
}

func (e CardPurchased) Type() EventType { return EventCardPurchased }
func (e CardPurchased) Round() int64    { return e.RoundID }

type WinnerDeclared struct {
	RoundID       int64           `json:"round_id"`
	ParticipantID int64           `json:"participant_id"`
	Card          models.Card     `json:"card"`
	Winnings      decimal.Decimal `json:"winnings"`
	Pot           decimal.Decimal `json:"pot"`
}

func (e WinnerDeclared) Type() EventType { return EventWinnerDeclared }
func (e WinnerDeclared) Round() int64    { return e.RoundID }

type RoundEnded struct {
	RoundID int64  `json:"round_id"`
	Reason  string `json:"reason"`
}

func (e RoundEnded) Type() EventType { return EventRoundEnded }
func (e RoundEnded) Round() int64    { return e.RoundID }

// CardRefunded is the notification payload sent to a purchaser of a cancelled round.
type CardRefunded struct {
	RoundID    int64           `json:"round_id"`
	CardNumber int             `json:"card_number"`
	Amount     decimal.Decimal `json:"amount"`
}

// RoundSnapshot is the value stored under a round's snapshot key.
type RoundSnapshot struct {
	Round          *models.Round `json:"round"`
	PurchasedCards int           `json:"purchased_cards"`
	Remaining      int           `json:"remaining"`
}
