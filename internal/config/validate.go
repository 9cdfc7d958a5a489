package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for problems that must stop the process.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// Operator API secret: empty disables auth, short is rejected
	if c.API.JWTSecret == "" {
		slog.Warn("API_JWT_SECRET is empty, operator API has no authentication")
	} else if len(c.API.JWTSecret) < 32 {
		errs = append(errs, "API_JWT_SECRET must be at least 32 characters")
	}

	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	if c.DB.MinConns > c.DB.MaxConns {
		errs = append(errs, fmt.Sprintf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DB.MinConns, c.DB.MaxConns))
	}
	if c.NATS.StateHistory < 1 {
		errs = append(errs, "NATS_STATE_HISTORY must be positive")
	}

	// Loop
	if c.Loop.IntervalMs <= 0 {
		errs = append(errs, fmt.Sprintf("LOOP_INTERVAL_MS must be positive, got %d", c.Loop.IntervalMs))
	}
	if c.Loop.ReasoningTimeout <= 0 {
		errs = append(errs, "LOOP_REASONING_TIMEOUT must be positive")
	}
	if c.Reasoning.BaseURL == "" && c.Reasoning.APIKey == "" {
		errs = append(errs, "REASONING_BASE_URL or REASONING_API_KEY is required")
	}

	// Avatar
	switch c.Avatar.Transport {
	case "http":
		if c.Avatar.URL == "" {
			slog.Warn("AVATAR_URL is empty, avatar output unavailable")
		}
	case "xmpp":
		if c.XMPP.Host == "" || c.Avatar.JID == "" {
			errs = append(errs, "AVATAR_TRANSPORT=xmpp requires XMPP_HOST and AVATAR_JID")
		}
	default:
		errs = append(errs, fmt.Sprintf("AVATAR_TRANSPORT must be http or xmpp, got %q", c.Avatar.Transport))
	}

	if c.Knowledge.Capacity < 1 {
		errs = append(errs, "KNOWLEDGE_CAPACITY must be positive")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
