package config

import (
	"fmt"
	"time"

	"github.com/avvvet/bingo-rounds/internal/gamesvc/engine"
	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// Config is the game service configuration read from the environment.
type Config struct {
	PostgresURL    string `env:"POSTGRES_URL,required,notEmpty"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"true"`

	NatsURL   string `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	NatsToken string `env:"NATS_TOKEN"`

	MongoURI           string `env:"MONGODB_URI" envDefault:"mongodb://127.0.0.1:27017"`
	MongoDatabase      string `env:"MONGODB_DATABASE" envDefault:"bingo"`
	SnapshotCollection string `env:"SNAPSHOT_COLLECTION" envDefault:"round_snapshots"`

	TelegramToken string `env:"TELEGRAM_BOT_TOKEN"`

	Port        string   `env:"GAME_SERVICE_PORT" envDefault:"8002"`
	RateLimit   int      `env:"RATE_LIMIT" envDefault:"100"`
	JWTSecret   string   `env:"JWT_SECRET_KEY,required,notEmpty"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`

	LogToFile bool   `env:"LOG_TO_FILE" envDefault:"true"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	Stakes                 []decimal.Decimal `env:"ROUND_STAKES" envSeparator:"," envDefault:"10,20,50,100"`
	HouseFeeFraction       decimal.Decimal   `env:"HOUSE_FEE_FRACTION" envDefault:"0.2"`
	GameDurationSeconds    int               `env:"GAME_DURATION_SECONDS" envDefault:"180"`
	MaxCardsPerParticipant int               `env:"MAX_CARDS_PER_PARTICIPANT" envDefault:"4"`
	MinParticipants        int               `env:"MIN_PARTICIPANTS" envDefault:"1"`
	DrawIntervalSeconds    int               `env:"DRAW_INTERVAL_SECONDS" envDefault:"3"`
	PreRollSeconds         int               `env:"PRE_ROLL_SECONDS" envDefault:"30"`

	MinPendingRounds        int           `env:"MIN_PENDING_ROUNDS" envDefault:"1"`
	RetentionWindow         time.Duration `env:"RETENTION_WINDOW" envDefault:"30m"`
	MaintenanceInterval     time.Duration `env:"MAINTENANCE_INTERVAL" envDefault:"10s"`
	CountdownTick           time.Duration `env:"COUNTDOWN_TICK" envDefault:"1s"`
	WinnerReplacementDelay  time.Duration `env:"WINNER_REPLACEMENT_DELAY" envDefault:"7s"`
	TimeoutReplacementDelay time.Duration `env:"TIMEOUT_REPLACEMENT_DELAY" envDefault:"3s"`
	SnapshotTTL             time.Duration `env:"SNAPSHOT_TTL" envDefault:"10m"`
	StorageTimeout          time.Duration `env:"STORAGE_TIMEOUT" envDefault:"5s"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// RoundDefaults is the per-round template; the bet amount comes from the first stake.
func (c Config) RoundDefaults() models.RoundConfig {
	rc := models.RoundConfig{
		HouseFeeFraction:       c.HouseFeeFraction,
		Duration:               time.Duration(c.GameDurationSeconds) * time.Second,
		MaxCardsPerParticipant: c.MaxCardsPerParticipant,
		MinParticipants:        c.MinParticipants,
		DrawInterval:           time.Duration(c.DrawIntervalSeconds) * time.Second,
		PreRoll:                time.Duration(c.PreRollSeconds) * time.Second,
	}
	if len(c.Stakes) > 0 {
		rc.BetAmount = c.Stakes[0]
	}
	return rc
}

// Engine validates the round settings and builds the engine configuration.
func (c Config) Engine() (engine.Config, error) {
	if len(c.Stakes) == 0 {
		return engine.Config{}, fmt.Errorf("ROUND_STAKES must list at least one bet amount")
	}
	defaults := c.RoundDefaults()
	for _, stake := range c.Stakes {
		rc := defaults
		rc.BetAmount = stake
		if err := rc.Validate(); err != nil {
			return engine.Config{}, fmt.Errorf("round settings for stake %s: %w", stake, err)
		}
	}

	return engine.Config{
		Stakes:                  c.Stakes,
		Defaults:                defaults,
		MinPendingRounds:        c.MinPendingRounds,
		RetentionWindow:         c.RetentionWindow,
		MaintenanceInterval:     c.MaintenanceInterval,
		CountdownTick:           c.CountdownTick,
		WinnerReplacementDelay:  c.WinnerReplacementDelay,
		TimeoutReplacementDelay: c.TimeoutReplacementDelay,
		SnapshotTTL:             c.SnapshotTTL,
		StorageTimeout:          c.StorageTimeout,
	}, nil
}
