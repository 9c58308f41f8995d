package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
	log "github.com/sirupsen/logrus"
)

// PurchaseCard sells cardNumber of a scheduled round to participantID.
//
// Validation failures return a *ValidationError and a round that already
// left Scheduled returns a *ConflictError; neither mutates anything. The
// debit is applied synchronously with the round locked, so a purchase
// either lands before the countdown decision or is rejected after it.
func (m *Manager) PurchaseCard(ctx context.Context, roundID, participantID int64, cardNumber int) (*models.Card, error) {
	const op = "purchase card"

	lr, ok := m.registry.get(roundID)
	if !ok {
		return nil, invalid(op, ErrRoundNotFound)
	}
	if cardNumber < 1 || cardNumber > models.CardsPerRound {
		return nil, invalid(op, fmt.Errorf("%w: %d", ErrUnknownCard, cardNumber))
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	r := lr.round
	if r.Status != models.RoundScheduled {
		return nil, &ConflictError{RoundID: r.ID, Status: r.Status}
	}

	card, ok := lr.card(cardNumber)
	if !ok {
		return nil, invalid(op, fmt.Errorf("%w: %d", ErrUnknownCard, cardNumber))
	}
	if card.Owned() {
		return nil, invalid(op, ErrCardUnavailable)
	}
	if lr.holdings[participantID] >= r.Config.MaxCardsPerParticipant {
		return nil, invalid(op, ErrCardLimitReached)
	}

	sctx, cancel := m.storageCtx(ctx)
	defer cancel()

	p, err := m.repo.FindParticipant(sctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("%s: find participant %d: %w", op, participantID, err)
	}
	if p == nil {
		return nil, invalid(op, ErrUnknownParticipant)
	}
	bet := r.Config.BetAmount
	if p.Balance.LessThan(bet) {
		return nil, invalid(op, ErrInsufficientBalance)
	}

	if err := m.repo.AdjustBalance(sctx, participantID, bet.Neg()); err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			return nil, invalid(op, ErrInsufficientBalance)
		}
		return nil, fmt.Errorf("%s: debit participant %d: %w", op, participantID, err)
	}

	now := m.now()
	owner := participantID
	card.OwnerParticipantID = &owner
	card.PurchasedAt = &now
	lr.holdings[participantID]++
	lr.purchased++
	r.Pot = r.Pot.Add(bet)
	r.UpdatedAt = now

	pot := r.Pot
	m.persistCard(lr, card, models.CardPatch{OwnerParticipantID: &owner, PurchasedAt: &now})
	m.persistRound(lr, models.RoundPatch{Pot: &pot})
	betTx := &models.Transaction{
		ParticipantID: participantID,
		Kind:          models.TransactionBet,
		Amount:        bet,
		RoundID:       roundID,
		CardNumber:    cardNumber,
		CreatedAt:     now,
	}
	m.persistJob(lr, fmt.Sprintf("bet ledger participant %d round %d", participantID, r.ID), func(ctx context.Context) error {
		return m.repo.RecordTransaction(ctx, betTx)
	})
	m.bumpCounters(lr, participantID, 1, 0)

	ev := CardPurchased{RoundID: r.ID, ParticipantID: participantID, CardNumber: cardNumber, NewPot: pot}
	m.emit(ev)
	m.notifyParticipant(participantID, EventCardPurchased, ev)

	log.WithFields(log.Fields{
		"round":       r.ID,
		"participant": participantID,
		"card":        cardNumber,
		"pot":         pot.StringFixed(2),
	}).Info("card purchased")

	return card.Clone(), nil
}
