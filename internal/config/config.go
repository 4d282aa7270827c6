// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBPath        string `env:"BOOKCAFE_DB_PATH" envDefault:"./data/bookcafe.db"`
	SessionSecret string `env:"BOOKCAFE_SESSION_SECRET,required"`
	ServerHost    string `env:"BOOKCAFE_SERVER_HOST" envDefault:"localhost"`
	ServerPort    int    `env:"BOOKCAFE_SERVER_PORT" envDefault:"8080"`
	Env           string `env:"BOOKCAFE_ENV" envDefault:"development"`
	LogLevel      string `env:"BOOKCAFE_LOG_LEVEL" envDefault:"info"`

	// Login throttling and session hygiene
	MaxFailedLoginAttempts   int `env:"BOOKCAFE_MAX_FAILED_LOGIN_ATTEMPTS" envDefault:"2"`
	FailedLoginsWaitMinutes  int `env:"BOOKCAFE_FAILED_LOGINS_WAIT_MINUTES" envDefault:"15"`
	InactivityLogoutMinutes  int `env:"BOOKCAFE_AUTOMATIC_LOGOUT_INACTIVITY_MINUTES" envDefault:"30"`
	CyclicTasksFrequencySecs int `env:"BOOKCAFE_CYCLIC_TASKS_FREQUENCY_SECONDS" envDefault:"60"`

	// News ticker
	RedisURL      string `env:"BOOKCAFE_REDIS_URL"` // optional, ticker is disabled without it
	NewsKeyPrefix string `env:"BOOKCAFE_NEWS_KEY_PREFIX" envDefault:"bookcafe:"`

	// Book covers
	MaxCoverBytes int64 `env:"BOOKCAFE_MAX_COVER_BYTES" envDefault:"512000"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseNewsTicker returns true if the Redis-backed news ticker is configured.
func (c Config) UseNewsTicker() bool {
	return c.RedisURL != ""
}

// FailedLoginsWait returns the cooldown window after which the sweep
// forgives failed login attempts.
func (c Config) FailedLoginsWait() time.Duration {
	return time.Duration(c.FailedLoginsWaitMinutes) * time.Minute
}

// InactivityLogout returns the idle window after which the sweep
// force-logs-out a user.
func (c Config) InactivityLogout() time.Duration {
	return time.Duration(c.InactivityLogoutMinutes) * time.Minute
}

// SweepInterval returns the interval between reconciliation sweep ticks.
func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.CyclicTasksFrequencySecs) * time.Second
}

// MinSessionSecretLength is the minimum required length for the session secret.
const MinSessionSecretLength = 32

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if len(cfg.SessionSecret) < MinSessionSecretLength {
		return nil, fmt.Errorf("BOOKCAFE_SESSION_SECRET must be at least %d bytes long, got %d bytes; "+
			"generate a secure secret with: openssl rand -base64 32",
			MinSessionSecretLength, len(cfg.SessionSecret))
	}

	if cfg.MaxFailedLoginAttempts < 0 {
		return nil, fmt.Errorf("BOOKCAFE_MAX_FAILED_LOGIN_ATTEMPTS must not be negative")
	}
	if cfg.CyclicTasksFrequencySecs < 1 {
		return nil, fmt.Errorf("BOOKCAFE_CYCLIC_TASKS_FREQUENCY_SECONDS must be at least 1")
	}

	return cfg, nil
}
