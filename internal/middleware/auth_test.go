// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"

	"github.com/ubik80/bookCafe/internal/model"
	"github.com/ubik80/bookCafe/internal/store"
	"github.com/ubik80/bookCafe/internal/testutil"
)

func TestGetUser(t *testing.T) {
	t.Run("no user in context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if user := GetUser(req); user != nil {
			t.Errorf("GetUser() = %v, want nil", user)
		}
	})

	t.Run("user in context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		testUser := model.User{ID: 123, Username: "alice"}
		ctx := context.WithValue(req.Context(), ContextKeyUser, testUser)
		req = req.WithContext(ctx)

		user := GetUser(req)
		if user == nil {
			t.Fatal("GetUser() = nil, want user")
		}
		if user.ID != 123 {
			t.Errorf("GetUser().ID = %d, want 123", user.ID)
		}
		if user.Username != "alice" {
			t.Errorf("GetUser().Username = %q, want %q", user.Username, "alice")
		}
	})
}

func TestGetUserID(t *testing.T) {
	t.Run("no user in context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if id := GetUserID(req); id != 0 {
			t.Errorf("GetUserID() = %d, want 0", id)
		}
	})

	t.Run("user in context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		ctx := context.WithValue(req.Context(), ContextKeyUser, model.User{ID: 456})
		req = req.WithContext(ctx)

		if id := GetUserID(req); id != 456 {
			t.Errorf("GetUserID() = %d, want 456", id)
		}
	})
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(model.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("no principal redirects", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/books/add", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusSeeOther {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusSeeOther)
		}
		if loc := rec.Header().Get("Location"); loc != "/login" {
			t.Errorf("Location = %q, want /login", loc)
		}
	})

	t.Run("missing role redirects", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/books/add", nil)
		user := model.User{ID: 1, Username: "bob", Roles: []string{model.RoleUser}}
		req = req.WithContext(context.WithValue(req.Context(), ContextKeyUser, user))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusSeeOther {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusSeeOther)
		}
	})

	t.Run("held role passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/books/add", nil)
		user := model.User{ID: 1, Username: "root", Roles: []string{model.RoleUser, model.RoleAdmin}}
		req = req.WithContext(context.WithValue(req.Context(), ContextKeyUser, user))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})
}

// sessionRequest runs a request through the session middleware with the
// given user ID already stored in the session.
func sessionRequest(t *testing.T, sm *scs.SessionManager, handler http.Handler, userID int64) *httptest.ResponseRecorder {
	t.Helper()

	// First request: establish the session and capture the cookie.
	var token string
	login := sm.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sm.Put(r.Context(), SessionKeyUserID, userID)
	}))
	rec := httptest.NewRecorder()
	login.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session", nil))
	for _, c := range rec.Result().Cookies() {
		if c.Name == sm.Cookie.Name {
			token = c.Value
		}
	}
	if token == "" {
		t.Fatal("no session cookie issued")
	}

	// Second request: exercise the handler under test with that session.
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: sm.Cookie.Name, Value: token})
	rec = httptest.NewRecorder()
	sm.LoadAndSave(handler).ServeHTTP(rec, req)
	return rec
}

func TestAuth(t *testing.T) {
	sm := scs.New()

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("no session redirects to login", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		sm.LoadAndSave(Auth(sm)(okHandler)).ServeHTTP(rec, req)

		if rec.Code != http.StatusSeeOther {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusSeeOther)
		}
		if loc := rec.Header().Get("Location"); loc != "/login" {
			t.Errorf("Location = %q, want /login", loc)
		}
	})

	t.Run("session passes", func(t *testing.T) {
		rec := sessionRequest(t, sm, Auth(sm)(okHandler), 42)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})
}

func TestLoadUser(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()

	ctx := context.Background()
	queries := store.New(db)

	user, err := queries.CreateUser(ctx, store.CreateUserParams{
		Username:     "alice",
		PasswordHash: "x",
		CreatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	var loaded *model.User
	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loaded = GetUser(r)
		w.WriteHeader(http.StatusOK)
	})

	t.Run("fails closed when not logged in", func(t *testing.T) {
		sm := scs.New()
		rec := sessionRequest(t, sm, LoadUser(sm, queries)(capture), user.ID)

		if rec.Code != http.StatusSeeOther {
			t.Errorf("status = %d, want redirect for is_logged_in = false", rec.Code)
		}
	})

	t.Run("fails closed for vanished user", func(t *testing.T) {
		sm := scs.New()
		rec := sessionRequest(t, sm, LoadUser(sm, queries)(capture), 99999)

		if rec.Code != http.StatusSeeOther {
			t.Errorf("status = %d, want redirect for unknown user", rec.Code)
		}
	})

	t.Run("loads principal when logged in", func(t *testing.T) {
		if err := queries.MarkLoggedIn(ctx, user.ID, time.Now()); err != nil {
			t.Fatalf("MarkLoggedIn: %v", err)
		}

		sm := scs.New()
		rec := sessionRequest(t, sm, LoadUser(sm, queries)(capture), user.ID)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		if loaded == nil || loaded.ID != user.ID {
			t.Errorf("loaded user = %v, want id %d", loaded, user.ID)
		}
	})
}

func TestRefreshActivity(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	defer cleanup()

	ctx := context.Background()
	queries := store.New(db)

	user, err := queries.CreateUser(ctx, store.CreateUserParams{
		Username:     "alice",
		PasswordHash: "x",
		CreatedAt:    time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := queries.TouchActivity(ctx, user.ID, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("TouchActivity: %v", err)
	}

	handler := RefreshActivity(queries)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	before := time.Now().Add(-time.Minute)
	req := httptest.NewRequest(http.MethodGet, "/books", nil)
	req = req.WithContext(context.WithValue(req.Context(), ContextKeyUser, user))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	refreshed, err := queries.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if refreshed.LastActivity.Before(before) {
		t.Errorf("last_activity = %v, want refreshed past %v", refreshed.LastActivity, before)
	}
}
