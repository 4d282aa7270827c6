// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler runs the reconciliation sweep: the periodic background
// task that forgives expired login lockouts and force-logs-out idle users.
package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ubik80/bookCafe/internal/store"
)

// Sweeper reconciles user security state on a fixed interval. It is the
// only component that lifts login lockouts; the authenticator never checks
// the cooldown window inline.
type Sweeper struct {
	db     *sql.DB
	cron   *cron.Cron
	logger *slog.Logger

	interval        time.Duration
	failedLoginWait time.Duration
	inactivityMax   time.Duration

	now func() time.Time
}

// Config holds the sweep timing parameters.
type Config struct {
	// Interval is the wall-clock period between ticks.
	Interval time.Duration
	// FailedLoginWait is how long after the last failed attempt the
	// counter is forgiven.
	FailedLoginWait time.Duration
	// InactivityMax is how long a session may stay idle before the user is
	// logged out.
	InactivityMax time.Duration
}

// New creates a sweeper. Start must be called to begin ticking.
func New(db *sql.DB, logger *slog.Logger, cfg Config) *Sweeper {
	return &Sweeper{
		db:              db,
		cron:            cron.New(),
		logger:          logger,
		interval:        cfg.Interval,
		failedLoginWait: cfg.FailedLoginWait,
		inactivityMax:   cfg.InactivityMax,
		now:             time.Now,
	}
}

// SetClock overrides the time source. Intended for tests.
func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// Start schedules the sweep on its interval. Ticks do not overlap; cron
// runs the job serially per schedule entry.
func (s *Sweeper) Start() error {
	spec := fmt.Sprintf("@every %ds", int(s.interval.Seconds()))
	_, err := s.cron.AddFunc(spec, func() {
		if err := s.RunTick(context.Background()); err != nil {
			// State is corrected on the next tick; nothing to recover here.
			s.logger.Error("sweep tick failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("reconciliation sweep started",
		"interval", s.interval,
		"failed_login_wait", s.failedLoginWait,
		"inactivity_max", s.inactivityMax,
	)
	return nil
}

// Stop gracefully stops the sweep, waiting for a running tick to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("reconciliation sweep stopped")
}

// RunTick performs one sweep: the lockout reset pass and the idle logout
// pass, committed as a unit. Both passes are pure overwrites of derived
// fields, so a failed tick is safe to retry wholesale on the next interval.
func (s *Sweeper) RunTick(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning sweep transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	queries := store.New(tx)
	now := s.now()

	resets, err := queries.ResetExpiredFailedLogins(ctx, now.Add(-s.failedLoginWait))
	if err != nil {
		return fmt.Errorf("lockout reset pass: %w", err)
	}

	logouts, err := queries.LogoutInactiveUsers(ctx, now.Add(-s.inactivityMax))
	if err != nil {
		return fmt.Errorf("idle logout pass: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing sweep: %w", err)
	}

	if resets > 0 || logouts > 0 {
		s.logger.Info("sweep tick completed",
			"lockouts_reset", resets,
			"idle_logouts", logouts,
		)
	}
	return nil
}
