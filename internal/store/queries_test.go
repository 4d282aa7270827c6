// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/ubik80/bookCafe/internal/model"
	"github.com/ubik80/bookCafe/internal/store"
	"github.com/ubik80/bookCafe/internal/testutil"
)

func createUser(t *testing.T, queries *store.Queries, username string) model.User {
	t.Helper()

	user, err := queries.CreateUser(context.Background(), store.CreateUserParams{
		Username:     username,
		PasswordHash: "x",
		CreatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return user
}

func TestCreateUser_Defaults(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()

	user := createUser(t, store.New(db), "alice")

	if user.IsLoggedIn {
		t.Error("new user is_logged_in = true, want false")
	}
	if user.FailedLoginAttempts != 0 {
		t.Errorf("new user failed_login_attempts = %d, want 0", user.FailedLoginAttempts)
	}
	if user.LastFailedLoginAttempt.Valid {
		t.Error("new user last_failed_login_attempt set, want NULL")
	}
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()

	queries := store.New(db)
	createUser(t, queries, "alice")

	_, err := queries.CreateUser(context.Background(), store.CreateUserParams{
		Username:     "alice",
		PasswordHash: "y",
		CreatedAt:    time.Now(),
	})
	if err == nil {
		t.Fatal("expected unique constraint error for duplicate username")
	}
}

func TestRolesAndMembership(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()

	ctx := context.Background()
	queries := store.New(db)
	user := createUser(t, queries, "alice")

	adminRole, err := queries.CreateRole(ctx, model.RoleAdmin)
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	userRole, err := queries.CreateRole(ctx, model.RoleUser)
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}

	t.Run("create role is idempotent", func(t *testing.T) {
		again, err := queries.CreateRole(ctx, model.RoleAdmin)
		if err != nil {
			t.Fatalf("CreateRole again: %v", err)
		}
		if again.ID != adminRole.ID {
			t.Errorf("second CreateRole returned id %d, want %d", again.ID, adminRole.ID)
		}
	})

	t.Run("assign and list", func(t *testing.T) {
		if err := queries.AssignRole(ctx, userRole.ID, user.ID); err != nil {
			t.Fatalf("AssignRole: %v", err)
		}
		if err := queries.AssignRole(ctx, userRole.ID, user.ID); err != nil {
			t.Fatalf("AssignRole repeat: %v", err)
		}
		if err := queries.AssignRole(ctx, adminRole.ID, user.ID); err != nil {
			t.Fatalf("AssignRole admin: %v", err)
		}

		loaded, err := queries.GetUserByUsername(ctx, "alice")
		if err != nil {
			t.Fatalf("GetUserByUsername: %v", err)
		}
		if len(loaded.Roles) != 2 {
			t.Fatalf("roles = %v, want 2 entries", loaded.Roles)
		}
		if !loaded.HasRole(model.RoleAdmin) || !loaded.HasRole(model.RoleUser) {
			t.Errorf("roles = %v, want Admin and User", loaded.Roles)
		}
	})
}

func TestSeed(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()

	ctx := context.Background()
	queries := store.New(db)

	if err := store.Seed(ctx, db); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	// Seeding twice must not fail.
	if err := store.Seed(ctx, db); err != nil {
		t.Fatalf("Seed again: %v", err)
	}

	for _, name := range []string{model.RoleAdmin, model.RoleUser} {
		if _, err := queries.GetRoleByName(ctx, name); err != nil {
			t.Errorf("role %q missing after seed: %v", name, err)
		}
	}

	// A user named Admin picks up the Admin role on the next seed run.
	admin := createUser(t, queries, store.AdminUsername)
	if err := store.Seed(ctx, db); err != nil {
		t.Fatalf("Seed with admin user: %v", err)
	}
	loaded, err := queries.GetUserByID(ctx, admin.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if !loaded.IsAdmin() {
		t.Errorf("user %q roles = %v, want Admin granted", store.AdminUsername, loaded.Roles)
	}
}

func TestBooks(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()

	ctx := context.Background()
	queries := store.New(db)
	user := createUser(t, queries, "alice")

	cover := []byte{0xFF, 0xD8, 0xFF, 0xE0} // JPEG magic, enough for blob round-trip
	book, err := queries.CreateBook(ctx, store.CreateBookParams{
		Title:        "The Dispossessed",
		Author:       "Ursula K. Le Guin",
		Description:  "An ambiguous utopia.",
		CoverPicture: cover,
		UserCreated:  user.ID,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}

	t.Run("exists", func(t *testing.T) {
		found, err := queries.BookExists(ctx, "The Dispossessed", "Ursula K. Le Guin")
		if err != nil {
			t.Fatalf("BookExists: %v", err)
		}
		if !found {
			t.Error("BookExists = false for stored book")
		}

		found, err = queries.BookExists(ctx, "The Dispossessed", "Someone Else")
		if err != nil {
			t.Fatalf("BookExists: %v", err)
		}
		if found {
			t.Error("BookExists = true for different author")
		}
	})

	t.Run("cover", func(t *testing.T) {
		got, err := queries.GetBookCover(ctx, book.ID)
		if err != nil {
			t.Fatalf("GetBookCover: %v", err)
		}
		if string(got) != string(cover) {
			t.Errorf("cover = %v, want %v", got, cover)
		}

		if _, err := queries.GetBookCover(ctx, 99999); !errors.Is(err, sql.ErrNoRows) {
			t.Errorf("GetBookCover(unknown) err = %v, want sql.ErrNoRows", err)
		}
	})

	t.Run("get by id excludes blob", func(t *testing.T) {
		got, err := queries.GetBookByID(ctx, book.ID)
		if err != nil {
			t.Fatalf("GetBookByID: %v", err)
		}
		if got.Title != "The Dispossessed" {
			t.Errorf("title = %q", got.Title)
		}
		if got.CoverPicture != nil {
			t.Error("GetBookByID loaded the cover blob")
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := queries.DeleteBook(ctx, book.ID); err != nil {
			t.Fatalf("DeleteBook: %v", err)
		}
		if _, err := queries.GetBookByID(ctx, book.ID); !errors.Is(err, sql.ErrNoRows) {
			t.Errorf("GetBookByID after delete err = %v, want sql.ErrNoRows", err)
		}
	})
}

func TestSearchBooks(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()

	ctx := context.Background()
	queries := store.New(db)
	user := createUser(t, queries, "alice")

	seed := []struct {
		title, author string
		cover         []byte
	}{
		{"A Wizard of Earthsea", "Ursula K. Le Guin", []byte{1, 2, 3}},
		{"The Left Hand of Darkness", "Ursula K. Le Guin", nil},
		{"Neuromancer", "William Gibson", nil},
	}
	for _, s := range seed {
		if _, err := queries.CreateBook(ctx, store.CreateBookParams{
			Title:        s.title,
			Author:       s.author,
			CoverPicture: s.cover,
			UserCreated:  user.ID,
			CreatedAt:    time.Now(),
		}); err != nil {
			t.Fatalf("CreateBook %q: %v", s.title, err)
		}
	}

	t.Run("empty filters match everything", func(t *testing.T) {
		books, err := queries.SearchBooks(ctx, store.SearchBooksParams{SortBy: model.SortByTitle})
		if err != nil {
			t.Fatalf("SearchBooks: %v", err)
		}
		if len(books) != 3 {
			t.Fatalf("got %d books, want 3", len(books))
		}
		if books[0].Title != "A Wizard of Earthsea" {
			t.Errorf("first by title = %q", books[0].Title)
		}
	})

	t.Run("substring filter on author", func(t *testing.T) {
		books, err := queries.SearchBooks(ctx, store.SearchBooksParams{
			Author: "Le Guin",
			SortBy: model.SortByTitle,
		})
		if err != nil {
			t.Fatalf("SearchBooks: %v", err)
		}
		if len(books) != 2 {
			t.Fatalf("got %d books, want 2", len(books))
		}
	})

	t.Run("sort by author", func(t *testing.T) {
		books, err := queries.SearchBooks(ctx, store.SearchBooksParams{SortBy: model.SortByAuthor})
		if err != nil {
			t.Fatalf("SearchBooks: %v", err)
		}
		if books[0].Author != "Ursula K. Le Guin" {
			t.Errorf("first by author = %q", books[0].Author)
		}
		if books[2].Author != "William Gibson" {
			t.Errorf("last by author = %q", books[2].Author)
		}
	})

	t.Run("cover marker without blob", func(t *testing.T) {
		books, err := queries.SearchBooks(ctx, store.SearchBooksParams{
			Title:  "Earthsea",
			SortBy: model.SortByTitle,
		})
		if err != nil {
			t.Fatalf("SearchBooks: %v", err)
		}
		if len(books) != 1 {
			t.Fatalf("got %d books, want 1", len(books))
		}
		if !books[0].HasCover() {
			t.Error("HasCover = false for book with stored cover")
		}
	})
}

func TestSweepQueries(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()

	ctx := context.Background()
	queries := store.New(db)
	user := createUser(t, queries, "alice")

	t.Run("reset expired failed logins", func(t *testing.T) {
		if err := queries.RecordFailedLogin(ctx, user.ID, time.Now().Add(-time.Hour)); err != nil {
			t.Fatalf("RecordFailedLogin: %v", err)
		}

		n, err := queries.ResetExpiredFailedLogins(ctx, time.Now().Add(-30*time.Minute))
		if err != nil {
			t.Fatalf("ResetExpiredFailedLogins: %v", err)
		}
		if n != 1 {
			t.Errorf("reset count = %d, want 1", n)
		}

		// Nothing left to reset.
		n, err = queries.ResetExpiredFailedLogins(ctx, time.Now())
		if err != nil {
			t.Fatalf("ResetExpiredFailedLogins: %v", err)
		}
		if n != 0 {
			t.Errorf("second reset count = %d, want 0", n)
		}
	})

	t.Run("logout inactive users", func(t *testing.T) {
		if err := queries.MarkLoggedIn(ctx, user.ID, time.Now().Add(-time.Hour)); err != nil {
			t.Fatalf("MarkLoggedIn: %v", err)
		}

		n, err := queries.LogoutInactiveUsers(ctx, time.Now().Add(-30*time.Minute))
		if err != nil {
			t.Fatalf("LogoutInactiveUsers: %v", err)
		}
		if n != 1 {
			t.Errorf("logout count = %d, want 1", n)
		}

		loaded, err := queries.GetUserByID(ctx, user.ID)
		if err != nil {
			t.Fatalf("GetUserByID: %v", err)
		}
		if loaded.IsLoggedIn {
			t.Error("user still logged in")
		}
	})
}

func TestEvents(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()

	ctx := context.Background()
	queries := store.New(db)

	for i, msg := range []string{"first", "second", "third"} {
		if _, err := queries.CreateEvent(ctx, store.CreateEventParams{
			Level:     model.EventLevelInfo,
			Category:  model.EventCategorySystem,
			Message:   msg,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("CreateEvent: %v", err)
		}
	}

	events, err := queries.ListRecentEvents(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecentEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Message != "third" {
		t.Errorf("newest event = %q, want %q", events[0].Message, "third")
	}
}
