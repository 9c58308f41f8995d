package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type memRepo struct {
	mu           sync.Mutex
	nextRound    int64
	rounds       map[int64]*models.Round
	cards        map[string]*models.Card
	participants map[int64]*models.Participant
	txs          []models.Transaction

	failUpdateRound bool
	failUpdateCard  bool
	failCredits     bool
	failRecord      bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		rounds:       make(map[int64]*models.Round),
		cards:        make(map[string]*models.Card),
		participants: make(map[int64]*models.Participant),
	}
}

func (r *memRepo) addParticipant(id int64, balance string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[id] = &models.Participant{ID: id, Name: "p", Balance: decimal.RequireFromString(balance)}
}

func (r *memRepo) balance(id int64) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.participants[id].Balance
}

func (r *memRepo) participant(id int64) models.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.participants[id]
}

func (r *memRepo) transactions(kind models.TransactionKind) []models.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Transaction
	for _, tx := range r.txs {
		if tx.Kind == kind {
			out = append(out, tx)
		}
	}
	return out
}

func (r *memRepo) allTransactions() []models.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Transaction(nil), r.txs...)
}

func (r *memRepo) round(id int64) *models.Round {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rd, ok := r.rounds[id]; ok {
		return rd.Clone()
	}
	return nil
}

func (r *memRepo) roundCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rounds)
}

func (r *memRepo) cardCount(roundID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.cards {
		if c.RoundID == roundID {
			n++
		}
	}
	return n
}

func (r *memRepo) setFailUpdateRound(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failUpdateRound = v
}

func (r *memRepo) setFailUpdateCard(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failUpdateCard = v
}

// setFailCredits fails positive balance adjustments; debits still succeed.
func (r *memRepo) setFailCredits(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failCredits = v
}

func (r *memRepo) setFailRecord(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failRecord = v
}

func (r *memRepo) storedCard(roundID int64, n int) *models.Card {
	c, _ := r.FindCard(context.Background(), roundID, n)
	return c
}

func (r *memRepo) CreateRound(_ context.Context, draft models.Round) (*models.Round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextRound++
	draft.ID = r.nextRound
	r.rounds[draft.ID] = draft.Clone()
	return draft.Clone(), nil
}

func (r *memRepo) UpdateRound(_ context.Context, id int64, p models.RoundPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdateRound {
		return errors.New("storage unavailable")
	}
	rd, ok := r.rounds[id]
	if !ok {
		return errors.New("no such round")
	}
	if p.Status != nil {
		rd.Status = *p.Status
	}
	if p.ActualStart != nil {
		t := *p.ActualStart
		rd.ActualStart = &t
	}
	if p.EndTime != nil {
		t := *p.EndTime
		rd.EndTime = &t
	}
	if p.Pot != nil {
		rd.Pot = *p.Pot
	}
	if p.CalledNumbers != nil {
		rd.CalledNumbers = append([]models.Draw(nil), p.CalledNumbers...)
	}
	if p.WinnerParticipantID != nil {
		v := *p.WinnerParticipantID
		rd.WinnerParticipantID = &v
	}
	if p.WinningCardNumber != nil {
		v := *p.WinningCardNumber
		rd.WinningCardNumber = &v
	}
	if p.EndReason != nil {
		rd.EndReason = *p.EndReason
	}
	return nil
}

func (r *memRepo) ListLiveRounds(context.Context) ([]*models.Round, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Round
	for _, rd := range r.rounds {
		if rd.Status == models.RoundScheduled || rd.Status == models.RoundActive {
			out = append(out, rd.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) BulkCreateCards(_ context.Context, _ int64, cards []*models.Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cards {
		r.cards[c.ID] = c.Clone()
	}
	return nil
}

func (r *memRepo) FindCard(_ context.Context, roundID int64, n int) (*models.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.cards {
		if c.RoundID == roundID && c.CardNumber == n {
			return c.Clone(), nil
		}
	}
	return nil, nil
}

func (r *memRepo) UpdateCard(_ context.Context, id string, p models.CardPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdateCard {
		return errors.New("storage unavailable")
	}
	c, ok := r.cards[id]
	if !ok {
		return errors.New("no such card")
	}
	if p.OwnerParticipantID != nil {
		v := *p.OwnerParticipantID
		c.OwnerParticipantID = &v
	}
	if p.PurchasedAt != nil {
		t := *p.PurchasedAt
		c.PurchasedAt = &t
	}
	if p.IsWinning != nil {
		c.IsWinning = *p.IsWinning
	}
	if p.Marked != nil {
		c.Marked = *p.Marked
	}
	return nil
}

func (r *memRepo) FindPurchasedCards(_ context.Context, roundID int64) ([]*models.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Card
	for _, c := range r.cards {
		if c.RoundID == roundID && c.Owned() {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CardNumber < out[j].CardNumber })
	return out, nil
}

func (r *memRepo) CountPurchasedCards(_ context.Context, roundID, participantID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.cards {
		if c.RoundID == roundID && c.Owned() && *c.OwnerParticipantID == participantID {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) FindParticipant(_ context.Context, id int64) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) AdjustBalance(_ context.Context, id int64, delta decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCredits && delta.IsPositive() {
		return errors.New("storage unavailable")
	}
	p, ok := r.participants[id]
	if !ok {
		return ErrUnknownParticipant
	}
	next := p.Balance.Add(delta)
	if next.IsNegative() {
		return ErrInsufficientBalance
	}
	p.Balance = next
	return nil
}

func (r *memRepo) IncrementCounters(_ context.Context, id int64, played, won int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return ErrUnknownParticipant
	}
	p.GamesPlayed += played
	p.GamesWon += won
	return nil
}

func (r *memRepo) RecordTransaction(_ context.Context, tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failRecord {
		return errors.New("storage unavailable")
	}
	tx.ID = int64(len(r.txs) + 1)
	r.txs = append(r.txs, *tx)
	return nil
}

func (r *memRepo) ListRoundTransactions(_ context.Context, roundID int64, kind models.TransactionKind) ([]*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Transaction
	for _, tx := range r.txs {
		if tx.RoundID == roundID && tx.Kind == kind {
			cp := tx
			out = append(out, &cp)
		}
	}
	return out, nil
}

type recBroadcaster struct {
	mu     sync.Mutex
	events []Event
	keys   map[string]any
}

func newRecBroadcaster() *recBroadcaster {
	return &recBroadcaster{keys: make(map[string]any)}
}

func (b *recBroadcaster) Set(_ context.Context, key string, value any, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys[key] = value
	return nil
}

func (b *recBroadcaster) Publish(_ context.Context, e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *recBroadcaster) ofType(t EventType) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Event
	for _, e := range b.events {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

func (b *recBroadcaster) snapshot(key string) (RoundSnapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.keys[key].(RoundSnapshot)
	return v, ok
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, participantID int64, t EventType, payload any) error {
	args := m.Called(ctx, participantID, t, payload)
	return args.Error(0)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testRoundConfig() models.RoundConfig {
	return models.RoundConfig{
		BetAmount:              decimal.NewFromInt(10),
		HouseFeeFraction:       decimal.RequireFromString("0.2"),
		Duration:               180 * time.Second,
		MaxCardsPerParticipant: 4,
		MinParticipants:        1,
		DrawInterval:           time.Hour,
		PreRoll:                time.Hour,
	}
}

func testConfig() Config {
	return Config{
		Defaults:                testRoundConfig(),
		WinnerReplacementDelay:  time.Hour,
		TimeoutReplacementDelay: time.Hour,
		StorageTimeout:          time.Second,
	}
}

type harness struct {
	m     *Manager
	repo  *memRepo
	bc    *recBroadcaster
	clock *fakeClock
}

func newHarness(t *testing.T, cfg Config, notifier Notifier, opts ...Option) *harness {
	t.Helper()
	h := &harness{repo: newMemRepo(), bc: newRecBroadcaster(), clock: newFakeClock()}
	all := append([]Option{
		WithClock(h.clock.Now),
		WithSeedSource(func() (int64, error) { return 42, nil }),
	}, opts...)
	h.m = NewManager(cfg, h.repo, h.bc, notifier, all...)
	h.m.startWorkers()
	t.Cleanup(h.m.Stop)
	return h
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.m.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

// liveRound returns the registry entry; tests read it with the lock held.
func (h *harness) live(t *testing.T, id int64) *liveRound {
	t.Helper()
	lr, ok := h.m.registry.get(id)
	if !ok {
		t.Fatalf("round %d not registered", id)
	}
	return lr
}

// drawOrder returns a shuffle that calls first in the given order and then
// the rest ascending.
func drawOrder(first []models.Draw) func([]models.Draw) {
	rank := make(map[models.Draw]int, len(first))
	for i, d := range first {
		if _, ok := rank[d]; !ok {
			rank[d] = i
		}
	}
	return func(deck []models.Draw) {
		sort.SliceStable(deck, func(i, j int) bool {
			ri, iok := rank[deck[i]]
			rj, jok := rank[deck[j]]
			switch {
			case iok && jok:
				return ri < rj
			case iok:
				return true
			case jok:
				return false
			default:
				return deck[i].Number < deck[j].Number
			}
		})
	}
}

func columnDraws(g models.Grid, col int) []models.Draw {
	var out []models.Draw
	for row := 0; row < models.GridSize; row++ {
		c := g[row][col]
		if !c.Free {
			out = append(out, models.Draw{Letter: c.Letter, Number: c.Number})
		}
	}
	return out
}
