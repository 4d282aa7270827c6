// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package store provides database access for users, roles, books and the
// event log. Queries run against SQLite through database/sql; callers pass
// either *sql.DB or *sql.Tx via WithTx.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/ubik80/bookCafe/internal/model"
)

// DBTX is the subset of *sql.DB / *sql.Tx the queries need.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries wraps a database handle with typed query methods.
type Queries struct {
	db DBTX
}

// New creates a Queries instance bound to the given database handle.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries instance bound to the given transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const userColumns = `id, username, password_hash, is_logged_in,
	failed_login_attempts, last_failed_login_attempt, last_activity, created_at`

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsLoggedIn,
		&u.FailedLoginAttempts, &u.LastFailedLoginAttempt, &u.LastActivity, &u.CreatedAt)
	return u, err
}

// CreateUserParams holds the fields for CreateUser.
type CreateUserParams struct {
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// CreateUser inserts a new user with zeroed security counters and
// is_logged_in false.
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (model.User, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash, is_logged_in, failed_login_attempts, last_activity, created_at)
		VALUES (?, ?, 0, 0, ?, ?)
		RETURNING `+userColumns,
		arg.Username, arg.PasswordHash, arg.CreatedAt, arg.CreatedAt)
	return scanUser(row)
}

// GetUserByID fetches a user by primary key, including its role names.
func (q *Queries) GetUserByID(ctx context.Context, id int64) (model.User, error) {
	u, err := scanUser(q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return model.User{}, err
	}
	u.Roles, err = q.ListRoleNamesForUser(ctx, u.ID)
	return u, err
}

// GetUserByUsername fetches a user by its unique username, including role names.
func (q *Queries) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	u, err := scanUser(q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if err != nil {
		return model.User{}, err
	}
	u.Roles, err = q.ListRoleNamesForUser(ctx, u.ID)
	return u, err
}

// RecordFailedLogin increments the failed attempt counter and stamps the
// failure time.
func (q *Queries) RecordFailedLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    last_failed_login_attempt = ?
		WHERE id = ?`, at, id)
	return err
}

// MarkLoggedIn records a successful login: counter reset, session flag set,
// activity refreshed.
func (q *Queries) MarkLoggedIn(ctx context.Context, id int64, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE users
		SET is_logged_in = 1,
		    failed_login_attempts = 0,
		    last_activity = ?
		WHERE id = ?`, at, id)
	return err
}

// MarkLoggedOut clears the is_logged_in flag. Subsequent principal loads
// for this user fail closed until the next successful login.
func (q *Queries) MarkLoggedOut(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE users SET is_logged_in = 0 WHERE id = ?`, id)
	return err
}

// TouchActivity refreshes the user's last_activity timestamp.
func (q *Queries) TouchActivity(ctx context.Context, id int64, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE users SET last_activity = ? WHERE id = ?`, at, id)
	return err
}

// ResetExpiredFailedLogins zeroes the failed attempt counter for every user
// whose most recent failure is older than the cutoff. Returns the number of
// users reset.
func (q *Queries) ResetExpiredFailedLogins(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = 0
		WHERE failed_login_attempts > 0
		  AND last_failed_login_attempt < ?`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LogoutInactiveUsers clears is_logged_in for every user idle since before
// the cutoff. Returns the number of users logged out.
func (q *Queries) LogoutInactiveUsers(ctx context.Context, idleSince time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE users
		SET is_logged_in = 0
		WHERE is_logged_in = 1
		  AND last_activity < ?`, idleSince)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateRole inserts a role if it does not exist yet and returns it.
func (q *Queries) CreateRole(ctx context.Context, name string) (model.Role, error) {
	var r model.Role
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO roles (name) VALUES (?)
		ON CONFLICT(name) DO UPDATE SET name = excluded.name
		RETURNING id, name`, name).Scan(&r.ID, &r.Name)
	return r, err
}

// GetRoleByName fetches a role by its unique name.
func (q *Queries) GetRoleByName(ctx context.Context, name string) (model.Role, error) {
	var r model.Role
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name FROM roles WHERE name = ?`, name).Scan(&r.ID, &r.Name)
	return r, err
}

// AssignRole grants a role to a user. Granting an already-held role is a no-op.
func (q *Queries) AssignRole(ctx context.Context, roleID, userID int64) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO role_user (role_id, user_id) VALUES (?, ?)
		ON CONFLICT(role_id, user_id) DO NOTHING`, roleID, userID)
	return err
}

// ListRoleNamesForUser returns the names of all roles held by the user.
func (q *Queries) ListRoleNamesForUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT r.name
		FROM roles r
		JOIN role_user ru ON ru.role_id = r.id
		WHERE ru.user_id = ?
		ORDER BY r.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CreateBookParams holds the fields for CreateBook.
type CreateBookParams struct {
	Title        string
	Author       string
	Description  string
	CoverPicture []byte
	UserCreated  int64
	CreatedAt    time.Time
}

// CreateBook inserts a book and returns it without the cover blob.
func (q *Queries) CreateBook(ctx context.Context, arg CreateBookParams) (model.Book, error) {
	var b model.Book
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO books (title, author, description, cover_picture, user_created, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id, title, author, description, user_created, created_at`,
		arg.Title, arg.Author, arg.Description, arg.CoverPicture, arg.UserCreated, arg.CreatedAt).
		Scan(&b.ID, &b.Title, &b.Author, &b.Description, &b.UserCreated, &b.CreatedAt)
	return b, err
}

// GetBookByID fetches a book by primary key, without the cover blob.
func (q *Queries) GetBookByID(ctx context.Context, id int64) (model.Book, error) {
	var b model.Book
	err := q.db.QueryRowContext(ctx, `
		SELECT id, title, author, description, user_created, created_at
		FROM books WHERE id = ?`, id).
		Scan(&b.ID, &b.Title, &b.Author, &b.Description, &b.UserCreated, &b.CreatedAt)
	return b, err
}

// GetBookCover returns the stored cover blob for a book. sql.ErrNoRows is
// returned for unknown books; a nil slice for books without a cover.
func (q *Queries) GetBookCover(ctx context.Context, id int64) ([]byte, error) {
	var cover []byte
	err := q.db.QueryRowContext(ctx,
		`SELECT cover_picture FROM books WHERE id = ?`, id).Scan(&cover)
	return cover, err
}

// BookExists reports whether a book with the exact title and author is
// already in the library.
func (q *Queries) BookExists(ctx context.Context, title, author string) (bool, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM books WHERE title = ? AND author = ?`, title, author).Scan(&n)
	return n > 0, err
}

// DeleteBook removes a book from the library.
func (q *Queries) DeleteBook(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	return err
}

// SearchBooksParams holds the filters for SearchBooks. Empty filters match
// everything.
type SearchBooksParams struct {
	Title  string
	Author string
	SortBy string // model.SortByTitle or model.SortByAuthor
}

// SearchBooks returns books whose title and author contain the given
// substrings, ordered by the requested column. Cover blobs are not loaded.
func (q *Queries) SearchBooks(ctx context.Context, arg SearchBooksParams) ([]model.Book, error) {
	order := "title ASC"
	if model.ValidSortBy(arg.SortBy) == model.SortByAuthor {
		order = "author ASC"
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, title, author, description,
		       cover_picture IS NOT NULL AND length(cover_picture) > 0,
		       user_created, created_at
		FROM books
		WHERE title LIKE '%' || ? || '%' AND author LIKE '%' || ? || '%'
		ORDER BY `+order,
		arg.Title, arg.Author)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []model.Book
	for rows.Next() {
		var b model.Book
		var hasCover bool
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Description,
			&hasCover, &b.UserCreated, &b.CreatedAt); err != nil {
			return nil, err
		}
		if hasCover {
			// Marker only; the blob itself is served by GetBookCover.
			b.CoverPicture = []byte{1}
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// CreateEventParams holds the fields for CreateEvent.
type CreateEventParams struct {
	Level     string
	Category  string
	Message   string
	UserID    sql.NullInt64
	Metadata  string
	CreatedAt time.Time
}

// CreateEvent inserts an event log entry.
func (q *Queries) CreateEvent(ctx context.Context, arg CreateEventParams) (model.Event, error) {
	var e model.Event
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO events (level, category, message, user_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id, level, category, message, user_id, metadata, created_at`,
		arg.Level, arg.Category, arg.Message, arg.UserID, arg.Metadata, arg.CreatedAt).
		Scan(&e.ID, &e.Level, &e.Category, &e.Message, &e.UserID, &e.Metadata, &e.CreatedAt)
	return e, err
}

// ListRecentEvents returns the newest events first, up to limit.
func (q *Queries) ListRecentEvents(ctx context.Context, limit int64) ([]model.Event, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, level, category, message, user_id, metadata, created_at
		FROM events ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.Level, &e.Category, &e.Message,
			&e.UserID, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
