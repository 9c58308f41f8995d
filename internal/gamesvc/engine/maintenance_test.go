package engine

import (
	"context"
	"testing"
	"time"

	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSupplyPerStake(t *testing.T) {
	cfg := testConfig()
	cfg.Stakes = []decimal.Decimal{decimal.NewFromInt(10), decimal.NewFromInt(20)}
	cfg.MinPendingRounds = 2
	h := newHarness(t, cfg, nil)

	h.m.maintain(context.Background())
	h.m.maintain(context.Background())

	counts := map[string]int{}
	for _, r := range h.m.LiveRounds() {
		assert.Equal(t, models.RoundScheduled, r.Status)
		counts[r.Config.BetAmount.String()]++
	}
	assert.Equal(t, map[string]int{"10": 2, "20": 2}, counts)
}

func TestMaintenancePurgesSettledRounds(t *testing.T) {
	cfg := testConfig()
	cfg.RetentionWindow = 30 * time.Minute
	h := newHarness(t, cfg, nil)

	r := createRound(t, h, testRoundConfig())
	require.NoError(t, h.m.CancelRound(r.ID))

	h.m.maintain(context.Background())
	_, ok := h.m.Round(r.ID)
	assert.True(t, ok, "inside the retention window")

	h.clock.Advance(31 * time.Minute)
	h.m.maintain(context.Background())
	_, ok = h.m.Round(r.ID)
	assert.False(t, ok)
}

func TestResyncDirtyRound(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.repo.addParticipant(1, "100")
	r := createRound(t, h, testRoundConfig())

	h.repo.setFailUpdateRound(true)
	_, err := h.m.PurchaseCard(context.Background(), r.ID, 1, 4)
	require.NoError(t, err, "storage failures do not block the purchase")
	h.flush(t)

	lr := h.live(t, r.ID)
	assert.True(t, lr.dirty.Load())
	assert.True(t, h.repo.round(r.ID).Pot.IsZero())

	h.repo.setFailUpdateRound(false)
	h.m.resyncDirty()
	h.flush(t)

	assert.False(t, lr.dirty.Load())
	assert.True(t, decimal.NewFromInt(10).Equal(h.repo.round(r.ID).Pot))
}

func TestResyncRewritesFailedCardWrite(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.repo.addParticipant(1, "100")
	r := createRound(t, h, testRoundConfig())

	h.repo.setFailUpdateCard(true)
	_, err := h.m.PurchaseCard(context.Background(), r.ID, 1, 7)
	require.NoError(t, err)
	h.flush(t)

	assert.False(t, h.repo.storedCard(r.ID, 7).Owned())
	assert.True(t, h.live(t, r.ID).dirty.Load())

	h.repo.setFailUpdateCard(false)
	h.m.maintain(context.Background())
	h.flush(t)

	stored := h.repo.storedCard(r.ID, 7)
	require.True(t, stored.Owned())
	assert.Equal(t, int64(1), *stored.OwnerParticipantID)
	assert.NotNil(t, stored.PurchasedAt)

	m, _ := restart(t, h)

	lr, ok := m.registry.get(r.ID)
	require.True(t, ok)
	lr.mu.Lock()
	defer lr.mu.Unlock()
	assert.Equal(t, 1, lr.purchased)
	assert.True(t, decimal.NewFromInt(10).Equal(lr.round.Pot))
	assert.True(t, decimal.NewFromInt(90).Equal(h.repo.balance(1)))
	assert.Len(t, h.repo.transactions(models.TransactionBet), 1)
}

func TestFailedRefundCreditedOnce(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.repo.addParticipant(1, "100")
	r := createRound(t, h, testRoundConfig())
	_, err := h.m.PurchaseCard(context.Background(), r.ID, 1, 3)
	require.NoError(t, err)
	h.flush(t)

	h.repo.setFailCredits(true)
	require.NoError(t, h.m.CancelRound(r.ID))
	h.flush(t)

	assert.True(t, decimal.NewFromInt(90).Equal(h.repo.balance(1)))
	assert.Empty(t, h.repo.transactions(models.TransactionRefund))

	h.repo.setFailCredits(false)
	for i := 0; i < 2; i++ {
		h.m.maintain(context.Background())
		h.flush(t)
	}

	assert.True(t, decimal.NewFromInt(100).Equal(h.repo.balance(1)))
	assert.Len(t, h.repo.transactions(models.TransactionRefund), 1)
}

func TestFailedLedgerWriteDoesNotCreditTwice(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.repo.addParticipant(1, "100")
	r := createRound(t, h, testRoundConfig())
	_, err := h.m.PurchaseCard(context.Background(), r.ID, 1, 3)
	require.NoError(t, err)
	h.flush(t)

	h.repo.setFailRecord(true)
	require.NoError(t, h.m.CancelRound(r.ID))
	h.flush(t)

	assert.True(t, decimal.NewFromInt(100).Equal(h.repo.balance(1)), "balance moved before the ledger failed")
	assert.Empty(t, h.repo.transactions(models.TransactionRefund))

	h.repo.setFailRecord(false)
	h.m.maintain(context.Background())
	h.flush(t)

	assert.True(t, decimal.NewFromInt(100).Equal(h.repo.balance(1)))
	refunds := h.repo.transactions(models.TransactionRefund)
	require.Len(t, refunds, 1)
	assert.Equal(t, 3, refunds[0].CardNumber)
}
