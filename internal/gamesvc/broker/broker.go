package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avvvet/bingo-rounds/internal/comm"
	"github.com/avvvet/bingo-rounds/internal/gamesvc/engine"
	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// RoundService is the part of the engine reachable over NATS.
type RoundService interface {
	PurchaseCard(ctx context.Context, roundID, participantID int64, cardNumber int) (*models.Card, error)
	LiveRounds() []*models.Round
	Card(ctx context.Context, roundID int64, cardNumber int) (*models.Card, error)
}

type Conn interface {
	Publish(subject string, data []byte) error
	QueueSubscribe(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

type Broker struct {
	Conn   Conn
	Rounds RoundService
}

func NewBroker(nc Conn) *Broker {
	return &Broker{Conn: nc}
}

// handles message coming from socket service
func (b *Broker) handleMessage(msgNat *nats.Msg) {
	msg := &comm.WSMessage{}
	if err := json.Unmarshal(msgNat.Data, msg); err != nil {
		log.Errorf("Error nats message %s", err)
		return
	}
	b.dispatch(msg)
}

func (b *Broker) dispatch(msg *comm.WSMessage) {
	if b.Rounds == nil {
		log.Warnf("round service not ready, dropping %s", msg.Type)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch msg.Type {
	case comm.TypePurchaseCard:
		var req comm.PurchaseRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			log.Errorf("Error unmarshalling purchase-card: %s", err)
			b.Reply(comm.TypeError, comm.ErrorData{Error: "malformed purchase request"}, msg.SocketId)
			return
		}

		card, err := b.Rounds.PurchaseCard(ctx, req.RoundID, req.ParticipantID, req.CardNumber)
		resp := comm.PurchaseResponse{OK: err == nil, Card: card}
		if err != nil {
			resp.Code = engine.ErrorCode(err)
			resp.Error = err.Error()
			log.WithFields(log.Fields{
				"round":       req.RoundID,
				"participant": req.ParticipantID,
				"card":        req.CardNumber,
				"code":        resp.Code,
			}).Info("purchase rejected")
		}
		b.Reply(comm.TypePurchaseCardResponse, resp, msg.SocketId)

	case comm.TypeGetRounds:
		b.Reply(comm.TypeGetRoundsResponse, comm.RoundsData{Rounds: b.Rounds.LiveRounds()}, msg.SocketId)

	case comm.TypeGetCard:
		var req comm.CardRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			log.Errorf("Error unmarshalling get-card: %s", err)
			return
		}
		card, err := b.Rounds.Card(ctx, req.RoundID, req.CardNumber)
		if err != nil {
			b.Reply(comm.TypeError, comm.ErrorData{Error: err.Error()}, msg.SocketId)
			return
		}
		b.Reply(comm.TypeGetCardResponse, card, msg.SocketId)

	default:
		log.Errorf("Unknown message %s", msg.Type)
	}
}

// PublishEvent fans an engine event out to every socket service instance.
func (b *Broker) PublishEvent(_ context.Context, e engine.Event) error {
	return b.send(string(e.Type()), e, "")
}

// Reply answers a single web client.
func (b *Broker) Reply(msgType string, v any, socketId string) {
	if err := b.send(msgType, v, socketId); err != nil {
		log.Errorf("Error replying %s to %s: %s", msgType, socketId, err)
	}
}

func (b *Broker) send(msgType string, v any, socketId string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msgType, err)
	}

	payload, err := json.Marshal(&comm.WSMessage{
		Type:     msgType,
		Data:     data,
		SocketId: socketId,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	return b.Publish(comm.TopicGameService, payload)
}

// consume messages from socket services; one game service instance handles each
func (b *Broker) QueueSubscribe(topic, queueGroup string) (*nats.Subscription, error) {
	sub, err := b.Conn.QueueSubscribe(topic, queueGroup, b.handleMessage)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}
