package engine

import (
	"context"

	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
	log "github.com/sirupsen/logrus"
)

func (m *Manager) maintain(ctx context.Context) {
	m.ensureSupply(ctx)

	if ids := m.registry.purge(m.now().Add(-m.cfg.RetentionWindow)); len(ids) > 0 {
		log.WithField("rounds", ids).Debug("settled rounds purged")
	}

	m.resyncDirty()

	pending, active, settled := m.registry.counts()
	log.WithFields(log.Fields{
		"pending": pending,
		"active":  active,
		"settled": settled,
	}).Debug("maintenance pass")
}

// ensureSupply keeps at least MinPendingRounds scheduled rounds per stake.
func (m *Manager) ensureSupply(ctx context.Context) {
	if m.cfg.MinPendingRounds <= 0 {
		return
	}
	m.supplyMu.Lock()
	defer m.supplyMu.Unlock()

	pending := m.registry.pendingRounds()
	for _, stake := range m.cfg.Stakes {
		n := 0
		for _, lr := range pending {
			lr.mu.Lock()
			if lr.round.Status == models.RoundScheduled && lr.round.Config.BetAmount.Equal(stake) {
				n++
			}
			lr.mu.Unlock()
		}

		for ; n < m.cfg.MinPendingRounds; n++ {
			cfg := m.cfg.Defaults
			cfg.BetAmount = stake
			if _, err := m.CreateRound(ctx, cfg); err != nil {
				log.WithField("bet", stake.StringFixed(2)).WithError(err).Error("unable to top up scheduled rounds")
				break
			}
		}
	}
}

// resyncDirty rewrites rounds and cards whose last update failed with their
// full state and replays failed ledger and balance jobs.
func (m *Manager) resyncDirty() {
	for _, lr := range m.registry.all() {
		if !lr.dirty.CompareAndSwap(true, false) {
			continue
		}
		stale, jobs := lr.takeRetries()

		lr.mu.Lock()
		m.persistRound(lr, fullPatch(lr.round))
		for _, n := range stale {
			if c, ok := lr.card(n); ok {
				m.persistCard(lr, c, fullCardPatch(c))
			}
		}
		id := lr.round.ID
		lr.mu.Unlock()

		for _, j := range jobs {
			m.persistJob(lr, j.name, j.fn)
		}
		log.WithFields(log.Fields{
			"round":   id,
			"cards":   len(stale),
			"retried": len(jobs),
		}).Info("round state resynced")
	}
}

func fullCardPatch(c *models.Card) models.CardPatch {
	isWinning, marked := c.IsWinning, c.Marked
	p := models.CardPatch{IsWinning: &isWinning, Marked: &marked}
	if c.OwnerParticipantID != nil {
		owner := *c.OwnerParticipantID
		p.OwnerParticipantID = &owner
	}
	if c.PurchasedAt != nil {
		at := *c.PurchasedAt
		p.PurchasedAt = &at
	}
	return p
}

func fullPatch(r *models.Round) models.RoundPatch {
	c := r.Clone()
	status, pot := c.Status, c.Pot
	p := models.RoundPatch{
		Status:              &status,
		ActualStart:         c.ActualStart,
		EndTime:             c.EndTime,
		Pot:                 &pot,
		CalledNumbers:       c.CalledNumbers,
		WinnerParticipantID: c.WinnerParticipantID,
		WinningCardNumber:   c.WinningCardNumber,
	}
	if c.EndReason != "" {
		reason := c.EndReason
		p.EndReason = &reason
	}
	return p
}
