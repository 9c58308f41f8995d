package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/avvvet/bingo-rounds/internal/auth"
	"github.com/avvvet/bingo-rounds/internal/comm"
	"github.com/avvvet/bingo-rounds/internal/socketsvc/handlers"
	"github.com/avvvet/bingo-rounds/internal/socketsvc/routes"
	"github.com/avvvet/bingo-rounds/internal/socketsvc/ws"
	"github.com/go-chi/chi"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanPublisher struct {
	out chan comm.WSMessage
}

func (p *chanPublisher) Publish(topic string, payload []byte) error {
	var m comm.WSMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return err
	}
	p.out <- m
	return nil
}

func server(t *testing.T) (*httptest.Server, *ws.Ws, *chanPublisher, string) {
	t.Helper()

	pub := &chanPublisher{out: make(chan comm.WSMessage, 4)}
	s := ws.NewWs()
	s.Broker = pub

	ta := auth.New("test-secret")
	r := chi.NewRouter()
	routes.SetRoutes(r, handlers.NewHandler(s, "8001", nil), ta)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	token, err := auth.IssueToken(ta, 42, time.Hour)
	require.NoError(t, err)
	return srv, s, pub, token
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	srv, _, _, _ := server(t)

	_, rsp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/v1/ws"), nil)
	require.Error(t, err)
	require.NotNil(t, rsp)
	assert.Equal(t, http.StatusUnauthorized, rsp.StatusCode)
}

func TestWebSocketForwardsPurchase(t *testing.T) {
	srv, _, pub, token := server(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/v1/ws?jwt="+token), nil)
	require.NoError(t, err)
	defer conn.Close()

	data, _ := json.Marshal(comm.PurchaseRequest{RoundID: 1, CardNumber: 33, ParticipantID: 7})
	require.NoError(t, conn.WriteJSON(comm.WSMessage{Type: comm.TypePurchaseCard, Data: data}))

	select {
	case m := <-pub.out:
		assert.Equal(t, comm.TypePurchaseCard, m.Type)
		assert.NotEmpty(t, m.SocketId)

		var req comm.PurchaseRequest
		require.NoError(t, json.Unmarshal(m.Data, &req))
		assert.Equal(t, int64(42), req.ParticipantID)
	case <-time.After(2 * time.Second):
		t.Fatal("purchase was not forwarded")
	}
}

func TestWebSocketReceivesBroadcast(t *testing.T) {
	srv, s, pub, token := server(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/v1/ws?jwt="+token), nil)
	require.NoError(t, err)
	defer conn.Close()

	// a forwarded request proves the socket is registered
	require.NoError(t, conn.WriteJSON(comm.WSMessage{Type: comm.TypeGetRounds, Data: json.RawMessage(`{}`)}))
	select {
	case <-pub.out:
	case <-time.After(2 * time.Second):
		t.Fatal("socket was not registered")
	}

	s.DeliverAll(&comm.WSMessage{Type: "round-created", Data: json.RawMessage(`{"round_id":3}`)})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m comm.WSMessage
	require.NoError(t, conn.ReadJSON(&m))
	assert.Equal(t, "round-created", m.Type)
	assert.JSONEq(t, `{"round_id":3}`, string(m.Data))
}

func TestHealth(t *testing.T) {
	srv, _, _, _ := server(t)

	rsp, err := http.Get(srv.URL + "/v1/health")
	require.NoError(t, err)
	defer rsp.Body.Close()
	assert.Equal(t, http.StatusOK, rsp.StatusCode)
}
