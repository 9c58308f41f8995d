package robosvc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/avvvet/bingo-rounds/internal/comm"
	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recPublisher struct {
	msgs []comm.WSMessage
}

func (p *recPublisher) Publish(topic string, payload []byte) error {
	var m comm.WSMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return err
	}
	p.msgs = append(p.msgs, m)
	return nil
}

type recAccounts struct {
	seen []models.Participant
}

func (a *recAccounts) UpsertParticipant(_ context.Context, p models.Participant) (*models.Participant, error) {
	a.seen = append(a.seen, p)
	return &p, nil
}

func newService(pub Publisher) (*Service, time.Time, *[]time.Duration) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	delays := &[]time.Duration{}

	s := NewService(pub, 3, 4, 1)
	s.now = func() time.Time { return now }
	s.after = func(d time.Duration, f func()) {
		*delays = append(*delays, d)
		f()
	}
	return s, now, delays
}

func TestEnsureAccounts(t *testing.T) {
	s, _, _ := newService(&recPublisher{})
	accounts := &recAccounts{}

	require.NoError(t, s.EnsureAccounts(context.Background(), accounts, decimal.NewFromInt(500)))

	require.Len(t, accounts.seen, 3)
	assert.Equal(t, int64(9000000001), accounts.seen[0].ID)
	assert.Equal(t, "Abelo", accounts.seen[0].Name)
	assert.True(t, accounts.seen[2].Balance.Equal(decimal.NewFromInt(500)))
}

func TestRoundCreatedSchedulesPurchases(t *testing.T) {
	pub := &recPublisher{}
	s, now, delays := newService(pub)

	// enough rounds that at least one draws a nonzero number of buys
	for id := int64(1); id <= 10; id++ {
		data, _ := json.Marshal(roundCreated{RoundID: id, ScheduledStart: now.Add(30 * time.Second)})
		s.HandleMessage(&comm.WSMessage{Type: "round-created", Data: data})
	}

	require.NotEmpty(t, pub.msgs)
	assert.Len(t, *delays, len(pub.msgs))
	for _, d := range *delays {
		assert.Less(t, d, 30*time.Second)
	}

	for _, m := range pub.msgs {
		assert.Equal(t, comm.TypePurchaseCard, m.Type)
		assert.Contains(t, m.SocketId, socketPrefix)

		var req comm.PurchaseRequest
		require.NoError(t, json.Unmarshal(m.Data, &req))
		assert.GreaterOrEqual(t, req.ParticipantID, firstRobotID)
		assert.Less(t, req.ParticipantID, firstRobotID+3)
		assert.GreaterOrEqual(t, req.CardNumber, 1)
		assert.LessOrEqual(t, req.CardNumber, models.CardsPerRound)
	}
}

func TestRoundAboutToStartIsSkipped(t *testing.T) {
	pub := &recPublisher{}
	s, now, _ := newService(pub)

	data, _ := json.Marshal(roundCreated{RoundID: 1, ScheduledStart: now.Add(500 * time.Millisecond)})
	s.HandleMessage(&comm.WSMessage{Type: "round-created", Data: data})

	assert.Empty(t, pub.msgs)
}

func TestLoadConfigBounds(t *testing.T) {
	t.Setenv("POSTGRES_URL", "postgres://localhost/bingo")
	t.Setenv("ROBOT_COUNT", "99")

	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("ROBOT_COUNT", "2")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Count)
}
