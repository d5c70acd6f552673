package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds everything the user-service reads from the environment.
type Config struct {
	AppName string `env:"MEDICLAIM_APP_NAME" envDefault:"user-service"`
	AppEnv  string `env:"MEDICLAIM_APP_ENV" envDefault:"local"`

	HTTPAddr string `env:"MEDICLAIM_HTTP_ADDR" envDefault:":8080"`

	PGDSN string `env:"MEDICLAIM_PG_DSN"`

	JWTSecret  string        `env:"MEDICLAIM_JWT_SECRET"`
	JWTIssuer  string        `env:"MEDICLAIM_JWT_ISSUER" envDefault:"mediclaim-user-service"`
	AccessTTL  time.Duration `env:"MEDICLAIM_JWT_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL time.Duration `env:"MEDICLAIM_JWT_REFRESH_TTL" envDefault:"168h"`

	RateLimitPerSecond int   `env:"MEDICLAIM_RATE_LIMIT_PER_SECOND" envDefault:"20"`
	RateLimitBurst     int   `env:"MEDICLAIM_RATE_LIMIT_BURST" envDefault:"40"`
	MaxBodyBytes       int64 `env:"MEDICLAIM_MAX_BODY_BYTES" envDefault:"1048576"`

	MigrationsDir string `env:"MEDICLAIM_MIGRATIONS_DIR" envDefault:"migrations"`
	SeedsDir      string `env:"MEDICLAIM_SEEDS_DIR" envDefault:"seeds"`
}

// Load reads the configuration from the environment, honoring a local .env
// file when present.
func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("config: MEDICLAIM_JWT_SECRET is required")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("config: refresh TTL must exceed access TTL")
	}
	return cfg, nil
}
