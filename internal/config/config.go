package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port               int    `env:"PORT" envDefault:"8080"`
	RedisURL           string `env:"REDIS_URL,required"`
	DatabaseURL        string `env:"DATABASE_URL"`
	RoomTTLSeconds     int    `env:"ROOM_TTL_SECONDS" envDefault:"1800"`
	RequestTTLSeconds  int    `env:"REQUEST_TTL_SECONDS" envDefault:"60"`
	RoomCreateLimit    int    `env:"ROOM_CREATE_LIMIT_PER_MIN" envDefault:"30"`
	AuditRetentionDays int    `env:"AUDIT_RETENTION_DAYS" envDefault:"30"`
	LogLevel           string `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigins     string `env:"ALLOWED_ORIGINS" envDefault:""`
}

func (c *Config) RoomTTL() time.Duration {
	return time.Duration(c.RoomTTLSeconds) * time.Second
}

func (c *Config) RequestTTL() time.Duration {
	return time.Duration(c.RequestTTLSeconds) * time.Second
}

func (c *Config) AuditRetention() time.Duration {
	return time.Duration(c.AuditRetentionDays) * 24 * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Origins returns the allowed websocket origins, or nil when any origin
// is acceptable (development mode).
func (c *Config) Origins() []string {
	if c.AllowedOrigins == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func (c *Config) Validate(isProduction bool) error {
	if c.RequestTTLSeconds <= 0 {
		return fmt.Errorf("REQUEST_TTL_SECONDS must be positive")
	}
	if c.RoomTTLSeconds < c.RequestTTLSeconds {
		return fmt.Errorf("ROOM_TTL_SECONDS must be at least REQUEST_TTL_SECONDS")
	}

	if isProduction {
		if c.AllowedOrigins == "" {
			log.Warn().Msg("ALLOWED_ORIGINS is empty in production: websocket origin checks disabled")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
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
