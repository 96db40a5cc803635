// Package config loads the server configuration from the environment,
// with an optional YAML file overlay.
package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/sethvargo/go-envconfig"

	atrium "github.com/atriumhq/atrium"
)

// Config is the full server configuration.
type Config struct {
	Port     int    `env:"PORT,default=8080" yaml:"port"`
	BaseURL  string `env:"BASE_URL,default=http://localhost:8080" yaml:"baseUrl"`
	LogLevel string `env:"LOG_LEVEL,default=info" yaml:"logLevel"`

	SigningSecret string        `env:"SIGNING_SECRET" yaml:"signingSecret"`
	SessionTTL    time.Duration `env:"SESSION_TTL,default=24h" yaml:"sessionTtl"`
	LinkTTL       time.Duration `env:"LINK_TTL,default=30m" yaml:"linkTtl"`

	SuperAdminEmail    string `env:"SUPER_ADMIN_EMAIL" yaml:"superAdminEmail"`
	SuperAdminPassword string `env:"SUPER_ADMIN_PASSWORD" yaml:"superAdminPassword"`

	RedisURL string `env:"REDIS_URL,default=redis://localhost:6379/0" yaml:"redisUrl"`

	MailAPIKey string `env:"MAIL_API_KEY" yaml:"mailApiKey"`
	MailFrom   string `env:"MAIL_FROM" yaml:"mailFrom"`
	AdminEmail string `env:"ADMIN_EMAIL" yaml:"adminEmail"`

	MetricsEnabled bool `env:"METRICS_ENABLED,default=true" yaml:"metricsEnabled"`
	ShadowWrites   bool `env:"SHADOW_WRITES,default=true" yaml:"shadowWrites"`
}

// Load reads the environment and, when CONFIG_FILE is set, overlays the
// YAML file on top. File values win over environment values.
func Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("atrium/config: parsing env vars: %w", err)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWith is Load with an explicit lookuper and no file overlay.
// Intended for tests.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.ProcessWith(ctx, cfg, lookuper); err != nil {
		return nil, fmt.Errorf("atrium/config: parsing env vars: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("atrium/config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("atrium/config: parsing %s: %w", path, err)
	}
	return nil
}

// Validate enforces the settings the server cannot run without. A
// missing signing secret is fatal: the token layer must never fall back
// to a guessable default.
func (c *Config) Validate() error {
	if c.SigningSecret == "" {
		return fmt.Errorf("atrium/config: SIGNING_SECRET is not set: %w", atrium.ErrConfiguration)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("atrium/config: invalid port %d: %w", c.Port, atrium.ErrConfiguration)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
