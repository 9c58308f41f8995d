package engine

import (
	"context"
	"math"

	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Payout is the winner's share of pot after the house fee, to the cent.
func Payout(pot, houseFee decimal.Decimal) decimal.Decimal {
	return pot.Mul(decimal.NewFromInt(1).Sub(houseFee)).Round(2)
}

func (m *Manager) scheduleCountdown(lr *liveRound) {
	id := lr.round.ID
	wait := lr.round.ScheduledStart.Sub(m.now())
	if wait < 0 {
		wait = 0
	}
	m.tasks.after(countdownKey(id), wait, func(context.Context) {
		m.completeCountdown(id)
	})
	if m.cfg.CountdownTick > 0 && wait > m.cfg.CountdownTick {
		m.tasks.every(countdownTickKey(id), m.cfg.CountdownTick, func(context.Context) bool {
			return m.countdownTick(id)
		})
	}
}

func (m *Manager) countdownTick(id int64) bool {
	lr, ok := m.registry.get(id)
	if !ok {
		return false
	}
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.round.Status != models.RoundScheduled {
		return false
	}
	left := lr.round.ScheduledStart.Sub(m.now())
	if left <= 0 {
		return false
	}
	m.emit(RoundCountdown{RoundID: id, SecondsLeft: int(math.Ceil(left.Seconds()))})
	return true
}

// completeCountdown activates or cancels a scheduled round. A stale trigger
// for a round that already left Scheduled does nothing.
func (m *Manager) completeCountdown(id int64) {
	lr, ok := m.registry.get(id)
	if !ok {
		return
	}
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.round.Status != models.RoundScheduled {
		return
	}
	m.tasks.cancel(countdownTickKey(id))

	need := lr.round.Config.MinParticipants
	if need < 1 {
		need = 1
	}
	if lr.purchased >= need {
		m.activateLocked(lr)
		return
	}
	m.cancelLocked(lr)
}

func (m *Manager) activateLocked(lr *liveRound) {
	r := lr.round
	if err := m.registry.activate(r.ID); err != nil {
		log.WithField("round", r.ID).WithError(err).Error("activate round")
		return
	}

	now := m.now()
	status := models.RoundActive
	r.Status = status
	r.ActualStart = &now
	r.UpdatedAt = now

	started := now
	m.persistRound(lr, models.RoundPatch{Status: &status, ActualStart: &started})
	m.startCaller(lr)
	m.emit(RoundStarted{RoundID: r.ID, StartedAt: now, PurchasedCards: lr.purchased, Pot: r.Pot})

	log.WithFields(log.Fields{
		"round": r.ID,
		"cards": lr.purchased,
		"pot":   r.Pot.StringFixed(2),
	}).Info("round started")
}

func (m *Manager) startCaller(lr *liveRound) {
	id := lr.round.ID
	lr.caller = newCaller(id, lr.round.Config.DrawInterval, lr.called, m.shuffle, m.tasks)
	lr.caller.Start(func(context.Context) bool {
		return m.onTick(id)
	})
}

// onTick performs one draw of an active round and reports whether the
// caller should keep running.
func (m *Manager) onTick(id int64) bool {
	lr, ok := m.registry.get(id)
	if !ok {
		return false
	}
	lr.mu.Lock()
	defer lr.mu.Unlock()

	r := lr.round
	if r.Status != models.RoundActive || lr.caller == nil {
		if lr.caller != nil {
			lr.caller.Stop()
		}
		return false
	}
	if r.ActualStart != nil && m.now().Sub(*r.ActualStart) >= r.Config.Duration {
		m.exhaustLocked(lr, "duration elapsed")
		return false
	}
	d, ok := lr.caller.Next()
	if !ok {
		m.exhaustLocked(lr, "draws exhausted")
		return false
	}

	m.applyDraw(lr, d)
	if winner := lr.sweep(); winner != nil {
		m.declareWinnerLocked(lr, winner)
		return false
	}
	return true
}

func (m *Manager) applyDraw(lr *liveRound, d models.Draw) {
	r := lr.round
	if lr.called.Has(d) {
		log.WithFields(log.Fields{"round": r.ID, "draw": d.String()}).Warn("draw already called, skipped")
		return
	}
	r.CalledNumbers = append(r.CalledNumbers, d)
	lr.called[d] = struct{}{}
	r.UpdatedAt = m.now()

	for _, c := range lr.cards {
		if !c.Owned() {
			continue
		}
		if markDraw(c, d) {
			marks := c.Marked
			m.persistCard(lr, c, models.CardPatch{Marked: &marks})
		}
	}

	called := append([]models.Draw(nil), r.CalledNumbers...)
	m.persistRound(lr, models.RoundPatch{CalledNumbers: called})
	m.emit(NumberCalled{RoundID: r.ID, Draw: d, TotalCalled: len(called)})
}

func (m *Manager) declareWinnerLocked(lr *liveRound, card *models.Card) {
	r := lr.round
	if lr.caller != nil {
		lr.caller.Stop()
	}

	now := m.now()
	pid := *card.OwnerParticipantID
	n := card.CardNumber
	winnings := Payout(r.Pot, r.Config.HouseFeeFraction)

	status := models.RoundCompleted
	reason := models.EndReasonWinner
	r.Status = status
	r.EndTime = &now
	r.WinnerParticipantID = &pid
	r.WinningCardNumber = &n
	r.EndReason = reason
	r.UpdatedAt = now
	card.IsWinning = true
	m.registry.settle(r.ID, now)

	end, winner, cardNumber, isWinning := now, pid, n, true
	m.persistRound(lr, models.RoundPatch{
		Status:              &status,
		EndTime:             &end,
		WinnerParticipantID: &winner,
		WinningCardNumber:   &cardNumber,
		EndReason:           &reason,
	})
	m.persistCard(lr, card, models.CardPatch{IsWinning: &isWinning})
	m.credit(lr, pid, winnings, models.TransactionWin, r.ID, n)
	m.bumpCounters(lr, pid, 0, 1)

	ev := WinnerDeclared{RoundID: r.ID, ParticipantID: pid, Card: *card.Clone(), Winnings: winnings, Pot: r.Pot}
	m.emit(ev)
	m.emit(RoundEnded{RoundID: r.ID, Reason: reason})
	m.notifyParticipant(pid, EventWinnerDeclared, ev)

	log.WithFields(log.Fields{
		"round":       r.ID,
		"participant": pid,
		"card":        n,
		"winnings":    winnings.StringFixed(2),
		"draws":       len(r.CalledNumbers),
	}).Info("winner declared")

	m.scheduleReplacement(r.ID, r.Config, m.cfg.WinnerReplacementDelay)
}

// exhaustLocked completes an active round without a winner.
func (m *Manager) exhaustLocked(lr *liveRound, cause string) {
	r := lr.round
	if lr.caller != nil {
		lr.caller.Stop()
	}

	now := m.now()
	status := models.RoundCompleted
	reason := models.EndReasonTimeout
	r.Status = status
	r.EndTime = &now
	r.EndReason = reason
	r.UpdatedAt = now
	m.registry.settle(r.ID, now)

	end := now
	m.persistRound(lr, models.RoundPatch{Status: &status, EndTime: &end, EndReason: &reason})
	m.emit(RoundEnded{RoundID: r.ID, Reason: reason})

	log.WithFields(log.Fields{
		"round": r.ID,
		"draws": len(r.CalledNumbers),
		"cause": cause,
	}).Info("round ended without winner")

	m.scheduleReplacement(r.ID, r.Config, m.cfg.TimeoutReplacementDelay)
}

// cancelLocked cancels a scheduled round and refunds every purchased card.
func (m *Manager) cancelLocked(lr *liveRound) {
	r := lr.round
	m.tasks.cancel(countdownKey(r.ID))
	m.tasks.cancel(countdownTickKey(r.ID))

	now := m.now()
	status := models.RoundCancelled
	reason := models.EndReasonCancelled
	r.Status = status
	r.EndTime = &now
	r.EndReason = reason
	r.UpdatedAt = now
	m.registry.settle(r.ID, now)

	end := now
	m.persistRound(lr, models.RoundPatch{Status: &status, EndTime: &end, EndReason: &reason})

	bet := r.Config.BetAmount
	refunded := lr.purchasedCards()
	for _, c := range refunded {
		pid := *c.OwnerParticipantID
		m.credit(lr, pid, bet, models.TransactionRefund, r.ID, c.CardNumber)
		m.notifyParticipant(pid, EventCardRefunded, CardRefunded{RoundID: r.ID, CardNumber: c.CardNumber, Amount: bet})
	}
	m.emit(RoundEnded{RoundID: r.ID, Reason: reason})

	log.WithFields(log.Fields{
		"round":    r.ID,
		"refunded": len(refunded),
	}).Info("round cancelled")

	m.scheduleReplacement(r.ID, r.Config, 0)
}

// CancelRound cancels a round that has not started yet, refunding its purchasers.
func (m *Manager) CancelRound(id int64) error {
	lr, ok := m.registry.get(id)
	if !ok {
		return invalid("cancel round", ErrRoundNotFound)
	}
	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.round.Status != models.RoundScheduled {
		return &ConflictError{RoundID: id, Status: lr.round.Status}
	}
	m.cancelLocked(lr)
	return nil
}
