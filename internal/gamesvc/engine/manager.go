package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Config tunes the lifecycle manager. Defaults is the template for new
// rounds; each entry of Stakes replaces its bet amount.
type Config struct {
	Stakes   []decimal.Decimal
	Defaults models.RoundConfig

	MinPendingRounds        int
	RetentionWindow         time.Duration
	MaintenanceInterval     time.Duration
	CountdownTick           time.Duration
	WinnerReplacementDelay  time.Duration
	TimeoutReplacementDelay time.Duration
	SnapshotTTL             time.Duration
	StorageTimeout          time.Duration
}

func (c Config) withDefaults() Config {
	if c.StorageTimeout <= 0 {
		c.StorageTimeout = 5 * time.Second
	}
	if c.SnapshotTTL <= 0 {
		c.SnapshotTTL = 10 * time.Minute
	}
	if c.RetentionWindow <= 0 {
		c.RetentionWindow = 30 * time.Minute
	}
	if len(c.Stakes) == 0 && c.Defaults.BetAmount.IsPositive() {
		c.Stakes = []decimal.Decimal{c.Defaults.BetAmount}
	}
	return c
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithShuffle replaces the draw order used by new callers.
func WithShuffle(fn func([]models.Draw)) Option {
	return func(m *Manager) { m.shuffle = fn }
}

func WithSeedSource(fn func() (int64, error)) Option {
	return func(m *Manager) { m.newSeed = fn }
}

// Manager owns the lifecycle of every live round in the process.
type Manager struct {
	cfg         Config
	repo        Repository
	broadcaster Broadcaster
	notifier    Notifier

	registry  *registry
	tasks     *tasks
	persist   *outbox
	broadcast *outbox
	notify    *outbox

	now     func() time.Time
	shuffle func([]models.Draw)
	newSeed func() (int64, error)

	supplyMu  sync.Mutex
	startOnce sync.Once
	started   bool
	cancel    context.CancelFunc
}

func NewManager(cfg Config, repo Repository, broadcaster Broadcaster, notifier Notifier, opts ...Option) *Manager {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		cfg:         cfg,
		repo:        repo,
		broadcaster: broadcaster,
		notifier:    notifier,
		registry:    newRegistry(),
		tasks:       newTasks(ctx),
		persist:     newOutbox("persist", cfg.StorageTimeout),
		broadcast:   newOutbox("broadcast", cfg.StorageTimeout),
		notify:      newOutbox("notify", cfg.StorageTimeout),
		now:         time.Now,
		shuffle:     shuffleDraws,
		newSeed:     newSeed,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) startWorkers() {
	m.startOnce.Do(func() {
		m.started = true
		go m.persist.run()
		go m.broadcast.run()
		go m.notify.run()
	})
}

// Start rebuilds persisted live rounds, tops up the supply of scheduled
// rounds and starts periodic maintenance.
func (m *Manager) Start(ctx context.Context) error {
	m.startWorkers()

	restoreErr := m.restore(ctx)
	if restoreErr != nil {
		log.WithError(restoreErr).Error("unable to restore live rounds")
	}

	m.maintain(ctx)
	if m.cfg.MaintenanceInterval > 0 {
		m.tasks.every("maintenance", m.cfg.MaintenanceInterval, func(ctx context.Context) bool {
			m.maintain(ctx)
			return true
		})
	}
	return restoreErr
}

// Stop cancels every countdown and caller, then drains the outboxes.
func (m *Manager) Stop() {
	m.tasks.stop()
	m.cancel()
	if m.started {
		m.persist.close()
		m.broadcast.close()
		m.notify.close()
	}
	log.Info("round engine stopped")
}

// Flush waits for every collaborator call queued so far.
func (m *Manager) Flush(ctx context.Context) error {
	if err := m.persist.flush(ctx); err != nil {
		return err
	}
	if err := m.broadcast.flush(ctx); err != nil {
		return err
	}
	return m.notify.flush(ctx)
}

func (m *Manager) storageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.StorageTimeout)
}

// Round returns a copy of a round still held in memory.
func (m *Manager) Round(id int64) (*models.Round, bool) {
	lr, ok := m.registry.get(id)
	if !ok {
		return nil, false
	}
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.round.Clone(), true
}

// LiveRounds returns pending then active rounds, each ordered by id.
func (m *Manager) LiveRounds() []*models.Round {
	var out []*models.Round
	for _, lr := range append(m.registry.pendingRounds(), m.registry.activeRounds()...) {
		lr.mu.Lock()
		out = append(out, lr.round.Clone())
		lr.mu.Unlock()
	}
	return out
}

// Card returns one card, from memory for live rounds and from storage otherwise.
func (m *Manager) Card(ctx context.Context, roundID int64, cardNumber int) (*models.Card, error) {
	if lr, ok := m.registry.get(roundID); ok {
		lr.mu.Lock()
		defer lr.mu.Unlock()
		c, ok := lr.card(cardNumber)
		if !ok {
			return nil, invalid("get card", ErrUnknownCard)
		}
		return c.Clone(), nil
	}

	sctx, cancel := m.storageCtx(ctx)
	defer cancel()
	c, err := m.repo.FindCard(sctx, roundID, cardNumber)
	if err != nil {
		return nil, fmt.Errorf("find card %d of round %d: %w", cardNumber, roundID, err)
	}
	if c == nil {
		return nil, invalid("get card", ErrUnknownCard)
	}
	return c, nil
}

// ParticipantCardCount returns how many cards participantID holds in a round.
func (m *Manager) ParticipantCardCount(ctx context.Context, roundID, participantID int64) (int, error) {
	if lr, ok := m.registry.get(roundID); ok {
		lr.mu.Lock()
		defer lr.mu.Unlock()
		return lr.holdings[participantID], nil
	}

	sctx, cancel := m.storageCtx(ctx)
	defer cancel()
	n, err := m.repo.CountPurchasedCards(sctx, roundID, participantID)
	if err != nil {
		return 0, fmt.Errorf("count cards of participant %d in round %d: %w", participantID, roundID, err)
	}
	return n, nil
}

// ParticipantCards returns the cards participantID holds in a round, by card
// number, from memory for live rounds and from storage otherwise.
func (m *Manager) ParticipantCards(ctx context.Context, roundID, participantID int64) ([]*models.Card, error) {
	if lr, ok := m.registry.get(roundID); ok {
		lr.mu.Lock()
		defer lr.mu.Unlock()
		out := make([]*models.Card, 0, lr.holdings[participantID])
		for _, c := range lr.purchasedCards() {
			if *c.OwnerParticipantID == participantID {
				out = append(out, c.Clone())
			}
		}
		return out, nil
	}

	sctx, cancel := m.storageCtx(ctx)
	defer cancel()
	cards, err := m.repo.FindPurchasedCards(sctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("find cards of round %d: %w", roundID, err)
	}
	out := make([]*models.Card, 0, len(cards))
	for _, c := range cards {
		if c.Owned() && *c.OwnerParticipantID == participantID {
			out = append(out, c)
		}
	}
	return out, nil
}

// CreateRound allocates a scheduled round with its full card inventory and
// schedules its countdown.
func (m *Manager) CreateRound(ctx context.Context, cfg models.RoundConfig) (*models.Round, error) {
	if err := cfg.Validate(); err != nil {
		return nil, invalid("create round", err)
	}
	seed, err := m.newSeed()
	if err != nil {
		return nil, fmt.Errorf("create round: %w", err)
	}

	now := m.now()
	draft := models.Round{
		Seed:           seed,
		Status:         models.RoundScheduled,
		ScheduledStart: now.Add(cfg.PreRoll),
		Pot:            decimal.Zero,
		Config:         cfg,
		CalledNumbers:  []models.Draw{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	sctx, cancel := m.storageCtx(ctx)
	defer cancel()
	round, err := m.repo.CreateRound(sctx, draft)
	if err != nil {
		return nil, fmt.Errorf("create round: %w", err)
	}
	if round.CalledNumbers == nil {
		round.CalledNumbers = []models.Draw{}
	}

	cards := GenerateCards(round.ID, round.Seed)
	lr := newLiveRound(round, cards)

	lr.mu.Lock()
	defer lr.mu.Unlock()

	if err := m.registry.addPending(lr); err != nil {
		return nil, err
	}

	batch := make([]*models.Card, len(cards))
	for i, c := range cards {
		batch[i] = c.Clone()
	}
	m.persist.enqueue(fmt.Sprintf("create cards of round %d", round.ID), func(ctx context.Context) error {
		return m.repo.BulkCreateCards(ctx, round.ID, batch)
	})
	m.snapshot(lr)
	m.scheduleCountdown(lr)
	m.emit(RoundCreated{RoundID: round.ID, ScheduledStart: round.ScheduledStart, BetAmount: cfg.BetAmount})

	log.WithFields(log.Fields{
		"round": round.ID,
		"bet":   cfg.BetAmount.StringFixed(2),
		"start": round.ScheduledStart.Format(time.RFC3339),
	}).Info("round scheduled")

	return round.Clone(), nil
}

// replenish creates a round like cfg; supply creation is serialized so the
// floor check never races a replacement.
func (m *Manager) replenish(ctx context.Context, cfg models.RoundConfig) {
	m.supplyMu.Lock()
	defer m.supplyMu.Unlock()
	if _, err := m.CreateRound(ctx, cfg); err != nil {
		log.WithField("bet", cfg.BetAmount.StringFixed(2)).WithError(err).Error("replacement round not created")
	}
}

func (m *Manager) scheduleReplacement(fromID int64, cfg models.RoundConfig, delay time.Duration) {
	m.tasks.after(fmt.Sprintf("replace:%d", fromID), delay, func(ctx context.Context) {
		m.replenish(ctx, cfg)
	})
}

func countdownKey(id int64) string     { return fmt.Sprintf("countdown:%d", id) }
func countdownTickKey(id int64) string { return fmt.Sprintf("countdown-tick:%d", id) }
func snapshotKey(id int64) string      { return fmt.Sprintf("round:%d", id) }

// emit, notifyParticipant, snapshot and persistRound only queue work; they
// are safe to call with a round locked.

func (m *Manager) emit(e Event) {
	if m.broadcaster == nil {
		return
	}
	m.broadcast.enqueue(fmt.Sprintf("publish %s round %d", e.Type(), e.Round()), func(ctx context.Context) error {
		return m.broadcaster.Publish(ctx, e)
	})
}

func (m *Manager) notifyParticipant(participantID int64, t EventType, payload any) {
	if m.notifier == nil {
		return
	}
	m.notify.enqueue(fmt.Sprintf("notify %s participant %d", t, participantID), func(ctx context.Context) error {
		return m.notifier.Notify(ctx, participantID, t, payload)
	})
}

func (m *Manager) snapshot(lr *liveRound) {
	if m.broadcaster == nil {
		return
	}
	snap := RoundSnapshot{
		Round:          lr.round.Clone(),
		PurchasedCards: lr.purchased,
		Remaining:      len(lr.cards) - lr.purchased,
	}
	key := snapshotKey(lr.round.ID)
	m.broadcast.enqueue("snapshot "+key, func(ctx context.Context) error {
		return m.broadcaster.Set(ctx, key, snap, m.cfg.SnapshotTTL)
	})
}

func (m *Manager) persistRound(lr *liveRound, patch models.RoundPatch) {
	id := lr.round.ID
	m.persist.enqueue(fmt.Sprintf("update round %d", id), func(ctx context.Context) error {
		if err := m.repo.UpdateRound(ctx, id, patch); err != nil {
			lr.dirty.Store(true)
			return fmt.Errorf("update round %d: %w", id, err)
		}
		return nil
	})
	m.snapshot(lr)
}

// persistCard writes a card patch. A failed write marks the card stale so
// maintenance rewrites its full state.
func (m *Manager) persistCard(lr *liveRound, c *models.Card, patch models.CardPatch) {
	id, n, roundID := c.ID, c.CardNumber, c.RoundID
	m.persist.enqueue(fmt.Sprintf("update card %d of round %d", n, roundID), func(ctx context.Context) error {
		if err := m.repo.UpdateCard(ctx, id, patch); err != nil {
			lr.markCardStale(n)
			return fmt.Errorf("update card %d of round %d: %w", n, roundID, err)
		}
		return nil
	})
}

// persistJob queues fn and hands it to the round's retry list if it fails.
func (m *Manager) persistJob(lr *liveRound, name string, fn func(ctx context.Context) error) {
	m.persist.enqueue(name, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			lr.deferRetry(retryJob{name: name, fn: fn})
			return err
		}
		return nil
	})
}

// credit applies one settlement payment and its ledger entry. The ledger is
// only written once the balance moved, and a retry never moves it twice.
func (m *Manager) credit(lr *liveRound, participantID int64, amount decimal.Decimal, kind models.TransactionKind, roundID int64, cardNumber int) {
	tx := &models.Transaction{
		ParticipantID: participantID,
		Kind:          kind,
		Amount:        amount,
		RoundID:       roundID,
		CardNumber:    cardNumber,
		CreatedAt:     m.now(),
	}
	// only the persist worker runs the job
	applied := false
	m.persistJob(lr, fmt.Sprintf("%s credit participant %d round %d", kind, participantID, roundID), func(ctx context.Context) error {
		if !applied {
			if err := m.repo.AdjustBalance(ctx, participantID, amount); err != nil {
				return fmt.Errorf("credit %s: %w", amount.StringFixed(2), err)
			}
			applied = true
		}
		if err := m.repo.RecordTransaction(ctx, tx); err != nil {
			return fmt.Errorf("record %s transaction: %w", kind, err)
		}
		return nil
	})
}

func (m *Manager) bumpCounters(lr *liveRound, participantID int64, played, won int) {
	m.persistJob(lr, fmt.Sprintf("counters participant %d", participantID), func(ctx context.Context) error {
		return m.repo.IncrementCounters(ctx, participantID, played, won)
	})
}
