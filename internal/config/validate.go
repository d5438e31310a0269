package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	switch c.API.Env {
	case "demo", "live":
	default:
		return fmt.Errorf("api.env must be demo or live, got %q", c.API.Env)
	}

	if _, err := c.API.ProxyURL(); err != nil {
		return err
	}

	if c.Credentials.Name == "" {
		return errors.New("credentials.name is required")
	}
	if c.Credentials.Password == "" {
		return errors.New("credentials.password is required")
	}
	if c.Credentials.AppID == "" {
		return errors.New("credentials.app_id is required")
	}

	if c.Socket.HeartbeatInterval < 0 {
		return errors.New("socket.heartbeat_interval must be > 0")
	}
	if c.Socket.WriteTimeout < 0 {
		return errors.New("socket.write_timeout must be > 0")
	}
	if c.Socket.QueueSize < 1 {
		return errors.New("socket.queue_size must be >= 1")
	}
	if c.Auth.ChallengeMaxAttempts < 0 {
		return errors.New("auth.challenge_max_attempts must be >= 0")
	}

	switch c.Session.Store {
	case "memory":
	case "postgres":
		if err := c.Session.Database.validate("session.database"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("session.store must be memory or postgres, got %q", c.Session.Store)
	}

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

// ParseLevel maps a logging.level value to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", level)
}
