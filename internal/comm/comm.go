package comm

import (
	"encoding/json"

	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
)

// NATS subjects shared by the game and socket services.
const (
	TopicGameService   = "game.service"
	TopicSocketService = "socket.service"
)

// Message types exchanged with web clients. Engine events travel with their
// event type as the message type.
const (
	TypePurchaseCard         = "purchase-card"
	TypePurchaseCardResponse = "purchase-card-response"
	TypeGetRounds            = "get-rounds"
	TypeGetRoundsResponse    = "get-rounds-response"
	TypeGetCard              = "get-card"
	TypeGetCardResponse      = "get-card-response"
	TypeWatchRound           = "watch-round"
	TypeError                = "error"
)

type WSMessage struct {
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
	SocketId string          `json:"socketid,omitempty"`
}

// PurchaseRequest is filled in by the socket service; ParticipantID comes
// from the verified token, never from the client payload.
type PurchaseRequest struct {
	RoundID       int64 `json:"round_id"`
	CardNumber    int   `json:"card_number"`
	ParticipantID int64 `json:"participant_id"`
}

type PurchaseResponse struct {
	OK    bool         `json:"ok"`
	Card  *models.Card `json:"card,omitempty"`
	Code  string       `json:"code,omitempty"`
	Error string       `json:"error,omitempty"`
}

type CardRequest struct {
	RoundID    int64 `json:"round_id"`
	CardNumber int   `json:"card_number"`
}

type RoundRef struct {
	RoundID int64 `json:"round_id"`
}

type RoundsData struct {
	Rounds []*models.Round `json:"rounds"`
}

type ErrorData struct {
	Error string `json:"error"`
}
