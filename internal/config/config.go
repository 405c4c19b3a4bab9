package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"go-roomrelay/internal/db"
)

type Config struct {
	Addr string

	DBDriver string `env:"DB_DRIVER" envDefault:"pgx"`
	DBDSN    string `env:"DB_DSN,required,notEmpty"`

	// Empty disables cross-process fan-out.
	RedisAddr    string `env:"REDIS_ADDR"`
	RedisChannel string `env:"REDIS_CHANNEL" envDefault:"room-events"`

	DefaultRoom  string        `env:"DEFAULT_ROOM" envDefault:"general"`
	HistoryLimit int           `env:"HISTORY_LIMIT" envDefault:"50"`
	VoteAttempts int           `env:"VOTE_ATTEMPTS" envDefault:"3"`
	EventTimeout time.Duration `env:"EVENT_TIMEOUT" envDefault:"5s"`

	MaxMessageBytes int64 `env:"WS_MAX_MESSAGE_BYTES" envDefault:"8192"`
	SendBuffer      int   `env:"WS_SEND_BUFFER" envDefault:"256"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"INFO"`
}

// Load reads an optional .env file, then the environment, then command line flags.
func Load(fs *flag.FlagSet, args []string) (Config, error) {
	// A missing .env file is the normal case outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.Addr, "addr", ":8080", "http service address")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DefaultRoom == "" {
		return errors.New("DEFAULT_ROOM must not be empty")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}
	if c.VoteAttempts <= 0 {
		return fmt.Errorf("VOTE_ATTEMPTS must be positive, got %d", c.VoteAttempts)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive, got %d", c.SendBuffer)
	}
	return nil
}
