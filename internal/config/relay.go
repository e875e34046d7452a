package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// RelayConfig configures the signaling relay service.
type RelayConfig struct {
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadLimit       int64         `env:"RELAY_READ_LIMIT" envDefault:"65536"`
	SendBuffer      int           `env:"RELAY_SEND_BUFFER" envDefault:"256"`
	AllowedOrigins  []string      `env:"RELAY_ALLOWED_ORIGINS" envSeparator:","`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// LoadRelay parses environment variables into RelayConfig.
func LoadRelay() (*RelayConfig, error) {
	cfg := &RelayConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PORT must be between 1 and 65535, got %d", cfg.Port)
	}
	if cfg.ReadLimit <= 0 {
		return nil, fmt.Errorf("RELAY_READ_LIMIT must be positive")
	}
	if cfg.SendBuffer <= 0 {
		return nil, fmt.Errorf("RELAY_SEND_BUFFER must be positive")
	}

	return cfg, nil
}

// Addr returns the HTTP listen address.
func (c *RelayConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// OriginAllowed reports whether a websocket Origin header may connect. An
// empty allow list accepts every origin.
func (c *RelayConfig) OriginAllowed(origin string) bool {
	if len(c.AllowedOrigins) == 0 || origin == "" {
		return true
	}
	for _, o := range c.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}
