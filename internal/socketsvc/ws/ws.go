package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/avvvet/bingo-rounds/internal/comm"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Publisher forwards client requests to the game service.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Writer is the write side of a websocket connection.
type Writer interface {
	WriteJSON(v interface{}) error
}

// Client is one authenticated websocket connection.
// gorilla connections allow a single concurrent writer.
type Client struct {
	conn          Writer
	ParticipantID int64

	mu sync.Mutex
}

func NewClient(conn Writer, participantID int64) *Client {
	return &Client{conn: conn, ParticipantID: participantID}
}

func (c *Client) Send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

type pinger interface {
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

func (c *Client) Ping(deadline time.Time) error {
	p, ok := c.conn.(pinger)
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return p.WriteControl(websocket.PingMessage, nil, deadline)
}

type Ws struct {
	connMap sync.Map // socketId -> *Client
	roomMap sync.Map // socketId -> watched round id
	Broker  Publisher
}

func NewWs() *Ws {
	return &Ws{}
}

// handle socket message from web clients
func (s *Ws) SocketMessage(socketId string, message *comm.WSMessage) {
	client, ok := s.GetConnection(socketId)
	if !ok {
		log.Warnf("message from unknown socket %s", socketId)
		return
	}

	switch message.Type {
	case comm.TypeWatchRound:
		s.handleWatch(client, socketId, message)
	case comm.TypePurchaseCard:
		s.handlePurchase(client, socketId, message)
	case comm.TypeGetRounds, comm.TypeGetCard:
		s.forward(client, socketId, message)
	default:
		log.Warnf("unknown event received: %s", message.Type)
		s.sendError(client, "unknown message type "+message.Type)
	}
}

func (s *Ws) handleWatch(client *Client, socketId string, msg *comm.WSMessage) {
	var ref comm.RoundRef
	if err := json.Unmarshal(msg.Data, &ref); err != nil || ref.RoundID <= 0 {
		s.sendError(client, "malformed watch-round payload")
		return
	}
	s.StoreRoom(socketId, ref.RoundID)
	log.WithFields(log.Fields{"socket": socketId, "round": ref.RoundID}).Debug("watching round")
}

func (s *Ws) handlePurchase(client *Client, socketId string, msg *comm.WSMessage) {
	var req comm.PurchaseRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		log.Errorf("Error: invalid purchase payload %s", err)
		s.sendError(client, "malformed purchase-card payload")
		return
	}

	// the token decides who pays, never the payload
	req.ParticipantID = client.ParticipantID

	data, err := json.Marshal(req)
	if err != nil {
		log.Errorf("Failed to marshal purchase request: %v", err)
		return
	}
	msg.Data = data
	s.forward(client, socketId, msg)
}

func (s *Ws) forward(client *Client, socketId string, msg *comm.WSMessage) {
	msg.SocketId = socketId

	bytes, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("Failed to marshal WSMessage for NATS: %v", err)
		return
	}

	if err := s.Broker.Publish(comm.TopicSocketService, bytes); err != nil {
		s.sendError(client, "game service unavailable")
		return
	}
	log.Debugf("Forwarded %s from socket %s", msg.Type, socketId)
}

func (s *Ws) sendError(client *Client, errorMsg string) {
	data, _ := json.Marshal(comm.ErrorData{Error: errorMsg})
	if err := client.Send(&comm.WSMessage{Type: comm.TypeError, Data: data}); err != nil {
		log.Errorf("Failed to send error message to client: %v", err)
	}
}

func (s *Ws) StoreConnection(socketId string, client *Client) {
	s.connMap.Store(socketId, client)
}

func (s *Ws) GetConnection(socketId string) (*Client, bool) {
	c, ok := s.connMap.Load(socketId)
	if !ok {
		return nil, false
	}
	return c.(*Client), true
}

func (s *Ws) HandleDisconnect(socketId string) {
	s.connMap.Delete(socketId)
	s.roomMap.Delete(socketId)
}

func (s *Ws) StoreRoom(socketId string, roundID int64) {
	s.roomMap.Store(socketId, roundID)
}

func (s *Ws) GetRoom(socketId string) (int64, bool) {
	room, ok := s.roomMap.Load(socketId)
	if !ok {
		return 0, false
	}
	return room.(int64), true
}

func (s *Ws) GetRoomSockets(roundID int64) []string {
	var sockets []string
	s.roomMap.Range(func(key, value interface{}) bool {
		if value.(int64) == roundID {
			sockets = append(sockets, key.(string))
		}
		return true
	})
	return sockets
}

// Deliver sends m to one socket; unknown sockets belong to another instance.
func (s *Ws) Deliver(socketId string, m *comm.WSMessage) {
	client, ok := s.GetConnection(socketId)
	if !ok {
		return
	}
	if err := client.Send(m); err != nil {
		log.Errorf("Failed to write to socket %s: %v", socketId, err)
	}
}

func (s *Ws) DeliverRound(roundID int64, m *comm.WSMessage) {
	for _, socketId := range s.GetRoomSockets(roundID) {
		s.Deliver(socketId, m)
	}
}

func (s *Ws) DeliverAll(m *comm.WSMessage) {
	s.connMap.Range(func(key, value interface{}) bool {
		if err := value.(*Client).Send(m); err != nil {
			log.Errorf("Failed to write to socket %s: %v", key, err)
		}
		return true
	})
}
