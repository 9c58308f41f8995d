package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type RoundStatus string

const (
	RoundScheduled RoundStatus = "scheduled"
	RoundActive    RoundStatus = "active"
	RoundCompleted RoundStatus = "completed"
	RoundCancelled RoundStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s RoundStatus) Terminal() bool {
	return s == RoundCompleted || s == RoundCancelled
}

// CanTransition reports whether s -> to is a legal round transition.
func (s RoundStatus) CanTransition(to RoundStatus) bool {
	switch s {
	case RoundScheduled:
		return to == RoundActive || to == RoundCancelled
	case RoundActive:
		return to == RoundCompleted
	default:
		return false
	}
}

// End reasons carried by round-ended events and the rounds.end_reason column.
const (
	EndReasonWinner      = "winner"
	EndReasonTimeout     = "timeout"
	EndReasonCancelled   = "cancelled"
	EndReasonQuarantined = "quarantined"
)

// RoundConfig holds the per-round options a table is created with.
type RoundConfig struct {
	BetAmount              decimal.Decimal `json:"bet_amount"`
	HouseFeeFraction       decimal.Decimal `json:"house_fee_fraction"`
	Duration               time.Duration   `json:"duration"`
	MaxCardsPerParticipant int             `json:"max_cards_per_participant"`
	MinParticipants        int             `json:"min_participants"`
	DrawInterval           time.Duration   `json:"draw_interval"`
	PreRoll                time.Duration   `json:"pre_roll"`
}

func (c RoundConfig) Validate() error {
	if !c.BetAmount.IsPositive() {
		return fmt.Errorf("bet amount must be positive, got %s", c.BetAmount)
	}
	if c.HouseFeeFraction.IsNegative() || c.HouseFeeFraction.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("house fee fraction must be within 0..1, got %s", c.HouseFeeFraction)
	}
	if c.Duration <= 0 {
		return errors.New("game duration must be positive")
	}
	if c.DrawInterval <= 0 {
		return errors.New("draw interval must be positive")
	}
	if c.PreRoll < 0 {
		return errors.New("pre-roll must not be negative")
	}
	if c.MaxCardsPerParticipant < 1 {
		return fmt.Errorf("max cards per participant must be at least 1, got %d", c.MaxCardsPerParticipant)
	}
	if c.MinParticipants < 0 {
		return fmt.Errorf("min participants must not be negative, got %d", c.MinParticipants)
	}
	return nil
}

// Round is one bingo game instance with its own cards, pot and timeline.
type Round struct {
	ID                  int64           `json:"id"`
	Seed                int64           `json:"seed"`
	Status              RoundStatus     `json:"status"`
	ScheduledStart      time.Time       `json:"scheduled_start"`
	ActualStart         *time.Time      `json:"actual_start,omitempty"`
	EndTime             *time.Time      `json:"end_time,omitempty"`
	Pot                 decimal.Decimal `json:"pot"`
	Config              RoundConfig     `json:"config"`
	CalledNumbers       []Draw          `json:"called_numbers"`
	WinnerParticipantID *int64          `json:"winner_participant_id,omitempty"`
	WinningCardNumber   *int            `json:"winning_card_number,omitempty"`
	EndReason           string          `json:"end_reason,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Clone returns a deep copy safe to hand out of the engine.
func (r *Round) Clone() *Round {
	c := *r
	c.CalledNumbers = append([]Draw(nil), r.CalledNumbers...)
	if r.ActualStart != nil {
		t := *r.ActualStart
		c.ActualStart = &t
	}
	if r.EndTime != nil {
		t := *r.EndTime
		c.EndTime = &t
	}
	if r.WinnerParticipantID != nil {
		id := *r.WinnerParticipantID
		c.WinnerParticipantID = &id
	}
	if r.WinningCardNumber != nil {
		n := *r.WinningCardNumber
		c.WinningCardNumber = &n
	}
	return &c
}

// RoundPatch lists the round columns an update touches; nil fields are left alone.
type RoundPatch struct {
	Status              *RoundStatus
	ActualStart         *time.Time
	EndTime             *time.Time
	Pot                 *decimal.Decimal
	CalledNumbers       []Draw
	WinnerParticipantID *int64
	WinningCardNumber   *int
	EndReason           *string
}

func (p RoundPatch) Empty() bool {
	return p.Status == nil && p.ActualStart == nil && p.EndTime == nil && p.Pot == nil &&
		p.CalledNumbers == nil && p.WinnerParticipantID == nil && p.WinningCardNumber == nil &&
		p.EndReason == nil
}
