package models

import "time"

const CardsPerRound = 400

type Cell struct {
	Letter Letter `json:"letter"`
	Number int    `json:"number"`
	Free   bool   `json:"free,omitempty"`
}

// Grid is indexed [row][column].
type Grid [GridSize][GridSize]Cell

// Marks is indexed like Grid; the free center is always marked.
type Marks [GridSize][GridSize]bool

type Card struct {
	ID                 string     `json:"id"`
	RoundID            int64      `json:"round_id"`
	CardNumber         int        `json:"card_number"`
	Grid               Grid       `json:"grid"`
	Marked             Marks      `json:"marked"`
	OwnerParticipantID *int64     `json:"owner_participant_id,omitempty"`
	PurchasedAt        *time.Time `json:"purchased_at,omitempty"`
	IsWinning          bool       `json:"is_winning"`
}

func (c *Card) Owned() bool {
	return c.OwnerParticipantID != nil
}

func (c *Card) Clone() *Card {
	out := *c
	if c.OwnerParticipantID != nil {
		id := *c.OwnerParticipantID
		out.OwnerParticipantID = &id
	}
	if c.PurchasedAt != nil {
		t := *c.PurchasedAt
		out.PurchasedAt = &t
	}
	return &out
}

// CardPatch lists the card columns an update touches; nil fields are left alone.
type CardPatch struct {
	OwnerParticipantID *int64
	PurchasedAt        *time.Time
	IsWinning          *bool
	Marked             *Marks
}
