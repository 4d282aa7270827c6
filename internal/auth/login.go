// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ubik80/bookCafe/internal/model"
	"github.com/ubik80/bookCafe/internal/store"
)

// Outcome classifies the result of a login attempt. Callers decide the
// user-facing messaging per outcome.
type Outcome int

const (
	// OutcomeSuccess means the credentials verified and the user now holds
	// an active session.
	OutcomeSuccess Outcome = iota
	// OutcomeUnknownUser means no account exists for the username.
	OutcomeUnknownUser
	// OutcomeLockedOut means the account exceeded the failed attempt
	// threshold. The password is not verified in this state; the lock is
	// lifted only by the reconciliation sweep.
	OutcomeLockedOut
	// OutcomeInvalidPassword means the password did not verify. The failed
	// attempt counter has been incremented.
	OutcomeInvalidPassword
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeUnknownUser:
		return "unknown user"
	case OutcomeLockedOut:
		return "locked out"
	case OutcomeInvalidPassword:
		return "invalid password"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Service verifies credentials and applies the account lockout policy.
type Service struct {
	queries     *store.Queries
	maxAttempts int64
	now         func() time.Time
}

// NewService creates an authenticator backed by the given store.
// maxAttempts is the failed-attempt count above which logins are refused.
func NewService(queries *store.Queries, maxAttempts int) *Service {
	return &Service{
		queries:     queries,
		maxAttempts: int64(maxAttempts),
		now:         time.Now,
	}
}

// SetClock overrides the time source. Intended for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// AttemptLogin verifies the credentials for username and mutates the user's
// security state accordingly. The lockout check runs before password
// verification: a locked account is refused even with the correct password,
// until the sweep resets its counter. A non-nil user is returned only with
// OutcomeSuccess.
func (s *Service) AttemptLogin(ctx context.Context, username, password string) (Outcome, *model.User, error) {
	user, err := s.queries.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return OutcomeUnknownUser, nil, nil
		}
		return OutcomeUnknownUser, nil, fmt.Errorf("loading user: %w", err)
	}

	if user.FailedLoginAttempts > s.maxAttempts {
		return OutcomeLockedOut, nil, nil
	}

	ok, err := CheckPassword(password, user.PasswordHash)
	if err != nil {
		return OutcomeInvalidPassword, nil, fmt.Errorf("verifying password: %w", err)
	}

	now := s.now()
	if !ok {
		if err := s.queries.RecordFailedLogin(ctx, user.ID, now); err != nil {
			return OutcomeInvalidPassword, nil, fmt.Errorf("recording failed login: %w", err)
		}
		return OutcomeInvalidPassword, nil, nil
	}

	if err := s.queries.MarkLoggedIn(ctx, user.ID, now); err != nil {
		return OutcomeInvalidPassword, nil, fmt.Errorf("marking user logged in: %w", err)
	}

	user.IsLoggedIn = true
	user.FailedLoginAttempts = 0
	user.LastActivity = now
	return OutcomeSuccess, &user, nil
}

// Logout clears the user's is_logged_in flag. Destroying the transport
// session is the caller's responsibility.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	if err := s.queries.MarkLoggedOut(ctx, userID); err != nil {
		return fmt.Errorf("marking user logged out: %w", err)
	}
	return nil
}
