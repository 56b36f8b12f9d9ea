package solscan

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the Solscan Pro API client configuration.
type Config struct {
	APIKey         string        `env:"SOLSCAN_API_KEY"`                                           // Pro API key, sent as the "token" header
	BaseURL        string        `env:"SOLSCAN_BASE_URL" envDefault:"https://pro-api.solscan.io/v2.0"` // API base URL, overridable for tests
	RequestTimeout time.Duration `env:"SOLSCAN_REQUEST_TIMEOUT" envDefault:"30s"`                  // Per-request HTTP timeout
	RequestDelay   time.Duration `env:"SOLSCAN_REQUEST_DELAY" envDefault:"200ms"`                  // Minimum spacing between API calls
}

// LoadConfig loads the client configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse solscan config: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("SOLSCAN_API_KEY must be set")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("solscan base URL must not be empty")
	}
	return nil
}
