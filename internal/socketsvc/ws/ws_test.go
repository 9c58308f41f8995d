package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/avvvet/bingo-rounds/internal/comm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recWriter struct {
	mu  sync.Mutex
	out []*comm.WSMessage
}

func (w *recWriter) WriteJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.out = append(w.out, v.(*comm.WSMessage))
	return nil
}

func (w *recWriter) messages() []*comm.WSMessage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*comm.WSMessage(nil), w.out...)
}

type recPublisher struct {
	topic string
	msgs  []comm.WSMessage
	err   error
}

func (p *recPublisher) Publish(topic string, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	var m comm.WSMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return err
	}
	p.topic = topic
	p.msgs = append(p.msgs, m)
	return nil
}

func newWs(t *testing.T) (*Ws, *recPublisher, *recWriter) {
	t.Helper()
	pub := &recPublisher{}
	s := NewWs()
	s.Broker = pub

	w := &recWriter{}
	s.StoreConnection("sock-1", NewClient(w, 42))
	return s, pub, w
}

func msg(t *testing.T, typ string, v any) *comm.WSMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return &comm.WSMessage{Type: typ, Data: data}
}

func TestPurchaseCarriesTokenParticipant(t *testing.T) {
	s, pub, _ := newWs(t)

	s.SocketMessage("sock-1", msg(t, comm.TypePurchaseCard, comm.PurchaseRequest{RoundID: 3, CardNumber: 9, ParticipantID: 999}))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, comm.TopicSocketService, pub.topic)
	assert.Equal(t, "sock-1", pub.msgs[0].SocketId)

	var req comm.PurchaseRequest
	require.NoError(t, json.Unmarshal(pub.msgs[0].Data, &req))
	assert.Equal(t, int64(42), req.ParticipantID)
	assert.Equal(t, 9, req.CardNumber)
}

func TestWatchRound(t *testing.T) {
	s, pub, w := newWs(t)

	s.SocketMessage("sock-1", msg(t, comm.TypeWatchRound, comm.RoundRef{RoundID: 7}))
	assert.Empty(t, pub.msgs)

	room, ok := s.GetRoom("sock-1")
	require.True(t, ok)
	assert.Equal(t, int64(7), room)

	s.DeliverRound(7, &comm.WSMessage{Type: "number-called"})
	s.DeliverRound(8, &comm.WSMessage{Type: "number-called"})
	assert.Len(t, w.messages(), 1)
}

func TestUnknownTypeAnswersError(t *testing.T) {
	s, pub, w := newWs(t)

	s.SocketMessage("sock-1", &comm.WSMessage{Type: "offer"})
	assert.Empty(t, pub.msgs)

	out := w.messages()
	require.Len(t, out, 1)
	assert.Equal(t, comm.TypeError, out[0].Type)
}

func TestForwardFailureAnswersError(t *testing.T) {
	s, pub, w := newWs(t)
	pub.err = errors.New("nats down")

	s.SocketMessage("sock-1", &comm.WSMessage{Type: comm.TypeGetRounds})

	out := w.messages()
	require.Len(t, out, 1)
	assert.Equal(t, comm.TypeError, out[0].Type)
}

func TestDisconnectForgetsSocket(t *testing.T) {
	s, _, w := newWs(t)
	s.StoreRoom("sock-1", 7)

	s.HandleDisconnect("sock-1")

	_, ok := s.GetConnection("sock-1")
	assert.False(t, ok)
	assert.Empty(t, s.GetRoomSockets(7))

	s.DeliverAll(&comm.WSMessage{Type: "round-created"})
	assert.Empty(t, w.messages())
}
