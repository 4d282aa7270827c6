// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package model defines domain models and types used throughout the
// application including User, Role, Book, and event log structures.
package model

import (
	"database/sql"
	"time"
)

// Built-in role names. Every account holds RoleUser; RoleAdmin is granted
// explicitly and guards the book management routes.
const (
	RoleAdmin = "Admin"
	RoleUser  = "User"
)

// User represents a catalog user together with its login security state.
// FailedLoginAttempts, LastFailedLoginAttempt, IsLoggedIn and LastActivity
// are shared between the request path and the reconciliation sweep; both
// sides update them by unconditional overwrite.
type User struct {
	ID                     int64        `json:"id"`
	Username               string       `json:"username"`
	PasswordHash           string       `json:"-"` // Never expose in JSON
	IsLoggedIn             bool         `json:"is_logged_in"`
	FailedLoginAttempts    int64        `json:"failed_login_attempts"`
	LastFailedLoginAttempt sql.NullTime `json:"last_failed_login_attempt,omitempty"`
	LastActivity           time.Time    `json:"last_activity"`
	CreatedAt              time.Time    `json:"created_at"`
	Roles                  []string     `json:"roles,omitempty"`
}

// HasRole reports whether the user holds the named role.
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// IsAdmin returns true if the user has the Admin role.
func (u *User) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

// Role represents a named role tag.
type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
