package engine

import (
	"testing"
	"time"

	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLiveRound(id int64) *liveRound {
	return newLiveRound(&models.Round{ID: id, Status: models.RoundScheduled}, GenerateCards(id, id))
}

func TestRegistryPartitions(t *testing.T) {
	reg := newRegistry()
	require.NoError(t, reg.addPending(testLiveRound(2)))
	require.NoError(t, reg.addPending(testLiveRound(1)))
	assert.Error(t, reg.addPending(testLiveRound(1)))
	assert.Error(t, reg.addActive(testLiveRound(2)))

	require.NoError(t, reg.activate(1))
	assert.Error(t, reg.activate(1))
	assert.True(t, reg.isActive(1))
	assert.False(t, reg.isPending(1))

	pending := reg.pendingRounds()
	require.Len(t, pending, 1)
	assert.Equal(t, int64(2), pending[0].round.ID)

	now := time.Now()
	reg.settle(1, now.Add(-time.Hour))
	reg.settle(2, now)
	p, a, s := reg.counts()
	assert.Equal(t, [3]int{0, 0, 2}, [3]int{p, a, s})

	_, ok := reg.get(1)
	assert.True(t, ok, "settled rounds stay readable until purged")

	assert.Equal(t, []int64{1}, reg.purge(now.Add(-time.Minute)))
	_, ok = reg.get(1)
	assert.False(t, ok)
	assert.Len(t, reg.all(), 1)
}

func TestSweepPicksLowestOwnedWinner(t *testing.T) {
	lr := testLiveRound(1)
	owner := int64(9)

	for _, n := range []int{30, 4} {
		c, _ := lr.card(n)
		c.OwnerParticipantID = &owner
		for col := 0; col < models.GridSize; col++ {
			cell := c.Grid[0][col]
			lr.called[models.Draw{Letter: cell.Letter, Number: cell.Number}] = struct{}{}
		}
	}

	w := lr.sweep()
	require.NotNil(t, w)
	assert.Equal(t, 4, w.CardNumber)
	assert.Len(t, lr.purchasedCards(), 2)

	_, ok := lr.card(0)
	assert.False(t, ok)
	_, ok = lr.card(401)
	assert.False(t, ok)
}
