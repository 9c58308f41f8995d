package broker

import (
	"encoding/json"

	"github.com/avvvet/bingo-rounds/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Router delivers game service messages to local web clients.
type Router interface {
	Deliver(socketId string, m *comm.WSMessage)
	DeliverRound(roundID int64, m *comm.WSMessage)
	DeliverAll(m *comm.WSMessage)
}

type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

type Broker struct {
	Conn   Conn
	Router Router
}

func NewBroker(conn Conn, router Router) *Broker {
	return &Broker{Conn: conn, Router: router}
}

// every socket service instance sees every game service message
func (b *Broker) Subscribe(topic string) (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(topic, b.handleMessages)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// publish message to game service
func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}

// handleMessages receive message from game service
func (b *Broker) handleMessages(msgNats *nats.Msg) {
	message := &comm.WSMessage{}
	if err := json.Unmarshal(msgNats.Data, message); err != nil {
		log.Errorf("Error %s", err)
		return
	}
	b.route(message)
}

// events tied to a single table go only to sockets watching it
var roundScoped = map[string]bool{
	"round-countdown": true,
	"number-called":   true,
	"winner-declared": true,
}

func (b *Broker) route(m *comm.WSMessage) {
	if m.SocketId != "" {
		b.Router.Deliver(m.SocketId, m)
		return
	}

	if roundScoped[m.Type] {
		var ref comm.RoundRef
		if err := json.Unmarshal(m.Data, &ref); err != nil || ref.RoundID == 0 {
			log.Errorf("Error: %s without round id", m.Type)
			return
		}
		b.Router.DeliverRound(ref.RoundID, m)
		return
	}

	b.Router.DeliverAll(m)
}
