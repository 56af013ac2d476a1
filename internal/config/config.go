// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Env       string   `env:"APP_ENV" envDefault:"dev"`
	HTTPAddr  string   `env:"HTTP_ADDR" envDefault:":8080"`
	CORSAllow []string `env:"CORS_ALLOW" envSeparator:"," envDefault:"*"`

	// DatabaseURL enables the Postgres audit trail when set.
	DatabaseURL string `env:"DATABASE_URL"`
	AuditBuffer int    `env:"AUDIT_BUFFER" envDefault:"256"`

	// ProposalTimeout releases a pending proposal after this long; 0 disables it.
	ProposalTimeout time.Duration `env:"PROPOSAL_TIMEOUT" envDefault:"0s"`
	MaxPromptRunes  int           `env:"MAX_PROMPT_RUNES" envDefault:"280"`

	OutboxSize      int           `env:"OUTBOX_SIZE" envDefault:"32"`
	WriteTimeout    time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"3s"`
	PingInterval    time.Duration `env:"WS_PING_INTERVAL" envDefault:"20s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads an optional .env file and then parses the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.OutboxSize <= 0 {
		return Config{}, fmt.Errorf("parse env: OUTBOX_SIZE must be positive, got %d", cfg.OutboxSize)
	}
	if cfg.ProposalTimeout < 0 {
		return Config{}, fmt.Errorf("parse env: PROPOSAL_TIMEOUT must not be negative")
	}
	return cfg, nil
}
