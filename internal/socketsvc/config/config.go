package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the socket service configuration read from the environment.
type Config struct {
	NatsURL   string `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	NatsToken string `env:"NATS_TOKEN"`

	Port        string   `env:"SOCKET_SERVICE_PORT" envDefault:"8001"`
	RateLimit   int      `env:"RATE_LIMIT" envDefault:"100"`
	JWTSecret   string   `env:"JWT_SECRET_KEY,required,notEmpty"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`

	LogToFile bool   `env:"LOG_TO_FILE" envDefault:"true"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.RateLimit <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT must be positive, got %d", cfg.RateLimit)
	}
	return cfg, nil
}

// AllowOrigin checks websocket upgrades against the CORS allow list.
func (c Config) AllowOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	for _, o := range c.CORSOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
