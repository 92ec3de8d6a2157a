package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port              int    `env:"PORT" envDefault:"8080"`
	DatabaseURL       string `env:"DATABASE_URL,required"`
	RedisURL          string `env:"REDIS_URL,required"`
	GatewayWSURL      string `env:"GATEWAY_WS_URL,required"`
	GatewayMediaURL   string `env:"GATEWAY_MEDIA_URL"`
	CredentialsDir    string `env:"CREDENTIALS_DIR" envDefault:"./credentials"`
	APIToken          string `env:"API_TOKEN"`
	PixAPIURL         string `env:"PIX_API_URL"`
	PixAPIKey         string `env:"PIX_API_KEY"`
	PixWebhookSecret  string `env:"PIX_WEBHOOK_SECRET"`
	PresenceVisible   bool   `env:"PRESENCE_VISIBLE" envDefault:"true"`
	KeepaliveProbe    string `env:"KEEPALIVE_PROBE" envDefault:"presence"`
	MonthlyPriceCents int64  `env:"MONTHLY_PRICE_CENTS" envDefault:"2990"`
	DebounceSeconds   int    `env:"DEBOUNCE_SECONDS" envDefault:"5"`
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.DebounceSeconds) * time.Second
}

func (c *Config) Validate(isProduction bool) error {
	if c.KeepaliveProbe != "presence" && c.KeepaliveProbe != "noop" {
		return fmt.Errorf("KEEPALIVE_PROBE must be \"presence\" or \"noop\", got %q", c.KeepaliveProbe)
	}
	if c.MonthlyPriceCents <= 0 {
		return fmt.Errorf("MONTHLY_PRICE_CENTS must be positive")
	}

	if isProduction {
		if err := validateSecret("API_TOKEN", c.APIToken); err != nil {
			return err
		}
		if c.PixWebhookSecret == "" {
			log.Warn().Msg("PIX_WEBHOOK_SECRET is empty in production: webhook signature verification disabled")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.PixAPIURL == "" {
			log.Warn().Msg("PIX_API_URL is empty in production: payment flows will be rejected")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
