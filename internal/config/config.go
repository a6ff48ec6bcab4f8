package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// DatabaseType selects the repository backend: sqlite, postgres, mysql or memory
	DatabaseType string `env:"DB_TYPE" envDefault:"sqlite"`
	DatabasePath string `env:"DB_PATH" envDefault:"./starchart.db"`
	DatabaseURL  string `env:"DATABASE_URL"`

	// ProjectionDebounce is the coalescing window for derived projections
	ProjectionDebounce time.Duration `env:"PROJECTION_DEBOUNCE" envDefault:"16ms"`

	// ParentPINHash is a bcrypt hash; when set, parent signatures require the PIN
	ParentPINHash string `env:"PARENT_PIN_HASH"`

	// Email notifications for goal celebrations (disabled when SESFromEmail is empty)
	AWSRegion    string `env:"AWS_REGION" envDefault:"us-east-1"`
	SESFromEmail string `env:"SES_FROM_EMAIL"`
	SESFromName  string `env:"SES_FROM_NAME" envDefault:"Starchart"`
	ParentEmail  string `env:"PARENT_EMAIL"`

	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Debug        bool   `env:"DEBUG" envDefault:"false"`
}

// Load reads configuration from environment variables with sensible defaults.
// Variables in a .env file in the working directory are applied first
// without overriding the real environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return parse()
}

func parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.ProjectionDebounce < 0 {
		return nil, fmt.Errorf("PROJECTION_DEBOUNCE must not be negative")
	}
	return cfg, nil
}

// UsesMemory reports whether the in-memory repository is selected
func (c *Config) UsesMemory() bool {
	return c.DatabaseType == "memory"
}
