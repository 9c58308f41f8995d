// Package robosvc runs house robot players that keep fresh rounds populated.
package robosvc

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avvvet/bingo-rounds/internal/comm"
	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// robot user ids are sequential starting here
const firstRobotID int64 = 9000000001

const socketPrefix = "robot-"

var robotNames = []string{
	"Abelo", "meron bekele", "dawit", "mulugeta", "ted",
	"yonas", "liya", "Bereket Alemu", "Eden", "Samuel Yimer",
	"rahel", "Daniel Negash", "Bethel", "Kidus Wolde", "Natan",
}

type Config struct {
	PostgresURL  string          `env:"POSTGRES_URL,required,notEmpty"`
	NatsURL      string          `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	NatsToken    string          `env:"NATS_TOKEN"`
	Count        int             `env:"ROBOT_COUNT" envDefault:"5"`
	BuysPerRound int             `env:"ROBOT_BUYS_PER_ROUND" envDefault:"3"`
	StartBalance decimal.Decimal `env:"ROBOT_START_BALANCE" envDefault:"1000"`
	LogToFile    bool            `env:"LOG_TO_FILE" envDefault:"true"`
	LogLevel     string          `env:"LOG_LEVEL" envDefault:"info"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Count < 1 || cfg.Count > len(robotNames) {
		return Config{}, fmt.Errorf("ROBOT_COUNT must be within 1..%d, got %d", len(robotNames), cfg.Count)
	}
	return cfg, nil
}

type Accounts interface {
	UpsertParticipant(ctx context.Context, p models.Participant) (*models.Participant, error)
}

type Publisher interface {
	Publish(topic string, payload []byte) error
}

type Robot struct {
	ID   int64
	Name string
}

type roundCreated struct {
	RoundID        int64     `json:"round_id"`
	ScheduledStart time.Time `json:"scheduled_start"`
}

type Service struct {
	pub          Publisher
	robots       []Robot
	buysPerRound int

	mu  sync.Mutex
	rnd *rand.Rand

	now   func() time.Time
	after func(d time.Duration, f func())
}

func NewService(pub Publisher, count, buysPerRound int, seed uint64) *Service {
	robots := make([]Robot, count)
	for i := range robots {
		robots[i] = Robot{ID: firstRobotID + int64(i), Name: robotNames[i]}
	}
	return &Service{
		pub:          pub,
		robots:       robots,
		buysPerRound: buysPerRound,
		rnd:          rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:          time.Now,
		after: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

func (s *Service) Robots() []Robot {
	return s.robots
}

// EnsureAccounts creates missing robot participants with balance as their
// opening balance. Existing robots keep what they have.
func (s *Service) EnsureAccounts(ctx context.Context, accounts Accounts, balance decimal.Decimal) error {
	for _, r := range s.robots {
		p, err := accounts.UpsertParticipant(ctx, models.Participant{ID: r.ID, Name: r.Name, Balance: balance})
		if err != nil {
			return fmt.Errorf("robot %d: %w", r.ID, err)
		}
		log.WithFields(log.Fields{"robot": r.ID, "balance": p.Balance.String()}).Debug("robot account ready")
	}
	return nil
}

// HandleMessage reacts to game service traffic.
func (s *Service) HandleMessage(m *comm.WSMessage) {
	switch {
	case m.Type == "round-created":
		var ev roundCreated
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			log.Errorf("Failed to decode round-created: %v", err)
			return
		}
		s.planBuys(ev)

	case m.Type == comm.TypePurchaseCardResponse && strings.HasPrefix(m.SocketId, socketPrefix):
		var rsp comm.PurchaseResponse
		if err := json.Unmarshal(m.Data, &rsp); err != nil {
			return
		}
		if !rsp.OK {
			log.WithFields(log.Fields{"robot": m.SocketId, "code": rsp.Code}).Info("robot purchase rejected")
		}
	}
}

// planBuys spreads purchases across the time left before the round starts.
func (s *Service) planBuys(ev roundCreated) {
	window := ev.ScheduledStart.Sub(s.now())
	if window <= time.Second {
		return
	}

	s.mu.Lock()
	n := s.rnd.IntN(s.buysPerRound + 1)
	type buy struct {
		delay time.Duration
		robot Robot
		card  int
	}
	buys := make([]buy, 0, n)
	for i := 0; i < n; i++ {
		buys = append(buys, buy{
			delay: time.Duration(s.rnd.Int64N(int64(window - time.Second))),
			robot: s.robots[s.rnd.IntN(len(s.robots))],
			card:  1 + s.rnd.IntN(models.CardsPerRound),
		})
	}
	s.mu.Unlock()

	for _, b := range buys {
		s.after(b.delay, func() {
			s.purchase(ev.RoundID, b.robot, b.card)
		})
	}
}

func (s *Service) purchase(roundID int64, r Robot, cardNumber int) {
	data, err := json.Marshal(comm.PurchaseRequest{RoundID: roundID, CardNumber: cardNumber, ParticipantID: r.ID})
	if err != nil {
		log.Errorf("Failed to marshal robot purchase: %v", err)
		return
	}
	payload, err := json.Marshal(&comm.WSMessage{
		Type:     comm.TypePurchaseCard,
		Data:     data,
		SocketId: socketPrefix + strconv.FormatInt(r.ID, 10),
	})
	if err != nil {
		log.Errorf("Failed to marshal robot purchase: %v", err)
		return
	}

	if err := s.pub.Publish(comm.TopicSocketService, payload); err != nil {
		log.Errorf("robot %d purchase of card %d in round %d failed: %v", r.ID, cardNumber, roundID, err)
		return
	}
	log.WithFields(log.Fields{"robot": r.ID, "round": roundID, "card": cardNumber}).Debug("robot purchase sent")
}
