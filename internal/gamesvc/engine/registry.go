package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
)

// liveRound is the in-memory authority for one round. mu serializes every mutation.
type liveRound struct {
	mu        sync.Mutex
	round     *models.Round
	cards     []*models.Card // index card_number-1
	holdings  map[int64]int
	purchased int
	called    CalledSet
	caller    *Caller
	dirty     atomic.Bool

	// writes that failed and are replayed by maintenance
	retryMu    sync.Mutex
	staleCards map[int]struct{}
	retries    []retryJob
}

type retryJob struct {
	name string
	fn   func(ctx context.Context) error
}

func newLiveRound(r *models.Round, cards []*models.Card) *liveRound {
	return &liveRound{
		round:    r,
		cards:    cards,
		holdings: make(map[int64]int),
		called:   NewCalledSet(r.CalledNumbers),
	}
}

func (lr *liveRound) markCardStale(n int) {
	lr.retryMu.Lock()
	defer lr.retryMu.Unlock()
	if lr.staleCards == nil {
		lr.staleCards = make(map[int]struct{})
	}
	lr.staleCards[n] = struct{}{}
	lr.dirty.Store(true)
}

func (lr *liveRound) deferRetry(j retryJob) {
	lr.retryMu.Lock()
	defer lr.retryMu.Unlock()
	lr.retries = append(lr.retries, j)
	lr.dirty.Store(true)
}

// takeRetries hands over stale card numbers, ascending, and failed jobs in
// the order they failed.
func (lr *liveRound) takeRetries() ([]int, []retryJob) {
	lr.retryMu.Lock()
	defer lr.retryMu.Unlock()
	cards := make([]int, 0, len(lr.staleCards))
	for n := range lr.staleCards {
		cards = append(cards, n)
	}
	sort.Ints(cards)
	jobs := lr.retries
	lr.staleCards, lr.retries = nil, nil
	return cards, jobs
}

func (lr *liveRound) card(n int) (*models.Card, bool) {
	if n < 1 || n > len(lr.cards) {
		return nil, false
	}
	return lr.cards[n-1], true
}

// own records a purchase rebuilt from storage, marking the draws already called.
func (lr *liveRound) own(c *models.Card, participantID int64, at *time.Time) {
	owner := participantID
	c.OwnerParticipantID = &owner
	c.PurchasedAt = at
	for _, d := range lr.round.CalledNumbers {
		markDraw(c, d)
	}
	lr.holdings[participantID]++
	lr.purchased++
}

// sweep returns the lowest-numbered purchased card satisfying the win predicate.
func (lr *liveRound) sweep() *models.Card {
	for _, c := range lr.cards {
		if !c.Owned() {
			continue
		}
		if IsWinner(c.Grid, lr.called) {
			return c
		}
	}
	return nil
}

func (lr *liveRound) purchasedCards() []*models.Card {
	var out []*models.Card
	for _, c := range lr.cards {
		if c.Owned() {
			out = append(out, c)
		}
	}
	return out
}

type settledRound struct {
	lr *liveRound
	at time.Time
}

// registry indexes live rounds: every id sits in exactly one of pending, active or settled.
type registry struct {
	mu      sync.RWMutex
	pending map[int64]*liveRound
	active  map[int64]*liveRound
	settled map[int64]settledRound
}

func newRegistry() *registry {
	return &registry{
		pending: make(map[int64]*liveRound),
		active:  make(map[int64]*liveRound),
		settled: make(map[int64]settledRound),
	}
}

func (r *registry) has(id int64) bool {
	_, p := r.pending[id]
	_, a := r.active[id]
	_, s := r.settled[id]
	return p || a || s
}

func (r *registry) addPending(lr *liveRound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := lr.round.ID
	if r.has(id) {
		return fmt.Errorf("round %d already registered", id)
	}
	r.pending[id] = lr
	return nil
}

func (r *registry) addActive(lr *liveRound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := lr.round.ID
	if r.has(id) {
		return fmt.Errorf("round %d already registered", id)
	}
	r.active[id] = lr
	return nil
}

// activate moves a round from pending to active in one step.
func (r *registry) activate(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lr, ok := r.pending[id]
	if !ok {
		return fmt.Errorf("round %d is not pending", id)
	}
	delete(r.pending, id)
	r.active[id] = lr
	return nil
}

// settle takes a round out of pending/active and keeps it until purged.
func (r *registry) settle(id int64, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lr, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	} else if lr, ok = r.active[id]; ok {
		delete(r.active, id)
	}
	if ok {
		r.settled[id] = settledRound{lr: lr, at: at}
	}
}

func (r *registry) get(id int64) (*liveRound, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if lr, ok := r.pending[id]; ok {
		return lr, true
	}
	if lr, ok := r.active[id]; ok {
		return lr, true
	}
	if s, ok := r.settled[id]; ok {
		return s.lr, true
	}
	return nil, false
}

func (r *registry) isPending(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pending[id]
	return ok
}

func (r *registry) isActive(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.active[id]
	return ok
}

func sortedRounds(m map[int64]*liveRound) []*liveRound {
	out := make([]*liveRound, 0, len(m))
	for _, lr := range m {
		out = append(out, lr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].round.ID < out[j].round.ID })
	return out
}

func (r *registry) pendingRounds() []*liveRound {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedRounds(r.pending)
}

func (r *registry) activeRounds() []*liveRound {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedRounds(r.active)
}

func (r *registry) all() []*liveRound {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*liveRound, 0, len(r.pending)+len(r.active)+len(r.settled))
	for _, lr := range r.pending {
		out = append(out, lr)
	}
	for _, lr := range r.active {
		out = append(out, lr)
	}
	for _, s := range r.settled {
		out = append(out, s.lr)
	}
	return out
}

// purge drops settled rounds settled before cutoff and returns their ids.
// Rounds with writes still to replay are kept.
func (r *registry) purge(cutoff time.Time) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for id, s := range r.settled {
		if s.at.Before(cutoff) && !s.lr.dirty.Load() {
			delete(r.settled, id)
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *registry) counts() (pending, active, settled int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending), len(r.active), len(r.settled)
}
