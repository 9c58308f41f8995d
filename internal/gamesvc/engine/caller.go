package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
)

type callerState int

const (
	callerIdle callerState = iota
	callerRunning
	callerStopped
)

func (s callerState) String() string {
	switch s {
	case callerIdle:
		return "idle"
	case callerRunning:
		return "running"
	default:
		return "stopped"
	}
}

// shuffleDraws is the default non-deterministic deck order.
func shuffleDraws(deck []models.Draw) {
	rand.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
}

// Caller draws the un-called numbers of one active round at a fixed cadence.
// Its methods are invoked with the owning round locked.
type Caller struct {
	roundID  int64
	interval time.Duration
	deck     []models.Draw
	next     int
	state    callerState
	tasks    *tasks
}

func newCaller(roundID int64, interval time.Duration, called CalledSet, shuffle func([]models.Draw), t *tasks) *Caller {
	deck := make([]models.Draw, 0, models.UniverseMax)
	for _, d := range models.Universe() {
		if !called.Has(d) {
			deck = append(deck, d)
		}
	}
	shuffle(deck)

	return &Caller{
		roundID:  roundID,
		interval: interval,
		deck:     deck,
		tasks:    t,
	}
}

func (c *Caller) key() string {
	return fmt.Sprintf("caller:%d", c.roundID)
}

// Start moves an idle caller to running; onTick fires every interval until it returns false.
func (c *Caller) Start(onTick func(ctx context.Context) bool) {
	if c.state != callerIdle {
		return
	}
	c.state = callerRunning
	c.tasks.every(c.key(), c.interval, onTick)
}

// Stop cancels the cadence; no tick fires after it returns except one already inside onTick.
func (c *Caller) Stop() {
	if c.state == callerStopped {
		return
	}
	c.state = callerStopped
	c.tasks.cancel(c.key())
}

// Next pops the next draw; ok is false once the deck is exhausted.
func (c *Caller) Next() (models.Draw, bool) {
	if c.next >= len(c.deck) {
		return models.Draw{}, false
	}
	d := c.deck[c.next]
	c.next++
	return d, true
}

func (c *Caller) Remaining() int {
	return len(c.deck) - c.next
}

func (c *Caller) Running() bool {
	return c.state == callerRunning
}
