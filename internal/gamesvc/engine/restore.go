package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// restore rebuilds the registry from persisted scheduled and active rounds.
// A round that cannot be rebuilt is quarantined without blocking the others.
func (m *Manager) restore(ctx context.Context) error {
	sctx, cancel := m.storageCtx(ctx)
	rounds, err := m.repo.ListLiveRounds(sctx)
	cancel()
	if err != nil {
		return fmt.Errorf("list live rounds: %w", err)
	}

	restored := 0
	for _, r := range rounds {
		if err := m.restoreRound(ctx, r); err != nil {
			log.WithFields(log.Fields{
				"round":  r.ID,
				"status": r.Status,
			}).WithError(err).Error("round cannot be rebuilt, quarantining")
			m.quarantine(r)
			continue
		}
		restored++
	}

	if len(rounds) > 0 {
		log.WithFields(log.Fields{
			"restored":    restored,
			"quarantined": len(rounds) - restored,
		}).Info("live rounds restored")
	}
	return nil
}

func (m *Manager) restoreRound(ctx context.Context, r *models.Round) error {
	if r.Status != models.RoundScheduled && r.Status != models.RoundActive {
		return fmt.Errorf("unexpected status %q", r.Status)
	}
	if err := r.Config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(CalledSet, len(r.CalledNumbers))
	for _, d := range r.CalledNumbers {
		want, err := models.DrawFor(d.Number)
		if err != nil || want != d {
			return fmt.Errorf("invalid draw %s", d)
		}
		if seen.Has(d) {
			return fmt.Errorf("draw %s called twice", d)
		}
		seen[d] = struct{}{}
	}
	if r.CalledNumbers == nil {
		r.CalledNumbers = []models.Draw{}
	}

	sctx, cancel := m.storageCtx(ctx)
	purchased, err := m.repo.FindPurchasedCards(sctx, r.ID)
	cancel()
	if err != nil {
		return fmt.Errorf("load purchased cards: %w", err)
	}
	sctx, cancel = m.storageCtx(ctx)
	bets, err := m.repo.ListRoundTransactions(sctx, r.ID, models.TransactionBet)
	cancel()
	if err != nil {
		return fmt.Errorf("load bet ledger: %w", err)
	}

	lr := newLiveRound(r, GenerateCards(r.ID, r.Seed))
	for _, pc := range purchased {
		c, ok := lr.card(pc.CardNumber)
		if !ok {
			return fmt.Errorf("card number %d out of range", pc.CardNumber)
		}
		if pc.Grid != c.Grid {
			return fmt.Errorf("card %d does not match the round seed", pc.CardNumber)
		}
		if pc.OwnerParticipantID == nil {
			continue
		}
		var at *time.Time
		if pc.PurchasedAt != nil {
			t := *pc.PurchasedAt
			at = &t
		}
		lr.own(c, *pc.OwnerParticipantID, at)
	}

	// a bet without an owned card row means the card write was lost
	for _, tx := range bets {
		c, ok := lr.card(tx.CardNumber)
		if !ok {
			return fmt.Errorf("bet on card number %d out of range", tx.CardNumber)
		}
		if c.Owned() {
			if *c.OwnerParticipantID != tx.ParticipantID {
				log.WithFields(log.Fields{
					"round":       r.ID,
					"card":        tx.CardNumber,
					"owner":       *c.OwnerParticipantID,
					"participant": tx.ParticipantID,
				}).Warn("bet ledger disagrees with card owner")
			}
			continue
		}
		at := tx.CreatedAt
		lr.own(c, tx.ParticipantID, &at)
		lr.markCardStale(c.CardNumber)
		log.WithFields(log.Fields{
			"round":       r.ID,
			"card":        tx.CardNumber,
			"participant": tx.ParticipantID,
		}).Warn("card ownership recovered from bet ledger")
	}

	// the pot is never lowered
	expected := r.Config.BetAmount.Mul(decimal.NewFromInt(int64(lr.purchased)))
	switch {
	case r.Pot.LessThan(expected):
		log.WithFields(log.Fields{
			"round":    r.ID,
			"stored":   r.Pot.StringFixed(2),
			"expected": expected.StringFixed(2),
		}).Warn("pot behind purchased cards, raising")
		r.Pot = expected
		lr.dirty.Store(true)
	case r.Pot.GreaterThan(expected):
		log.WithFields(log.Fields{
			"round":    r.ID,
			"stored":   r.Pot.StringFixed(2),
			"expected": expected.StringFixed(2),
		}).Warn("pot exceeds purchased cards, keeping stored pot")
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	switch r.Status {
	case models.RoundScheduled:
		if err := m.registry.addPending(lr); err != nil {
			return err
		}
		m.scheduleCountdown(lr)
	case models.RoundActive:
		if r.ActualStart == nil {
			start := r.ScheduledStart
			r.ActualStart = &start
			lr.dirty.Store(true)
		}
		if err := m.registry.addActive(lr); err != nil {
			return err
		}
		if winner := lr.sweep(); winner != nil {
			m.declareWinnerLocked(lr, winner)
			return nil
		}
		m.startCaller(lr)
	}

	log.WithFields(log.Fields{
		"round":  r.ID,
		"status": r.Status,
		"cards":  lr.purchased,
		"draws":  len(r.CalledNumbers),
	}).Info("round restored")
	return nil
}

// quarantine cancels a round that cannot be rebuilt. Purchasers are not
// refunded automatically.
func (m *Manager) quarantine(r *models.Round) {
	now := m.now()
	status := models.RoundCancelled
	reason := models.EndReasonQuarantined
	m.persist.enqueue(fmt.Sprintf("quarantine round %d", r.ID), func(ctx context.Context) error {
		return m.repo.UpdateRound(ctx, r.ID, models.RoundPatch{Status: &status, EndTime: &now, EndReason: &reason})
	})
	m.emit(RoundEnded{RoundID: r.ID, Reason: reason})
}
