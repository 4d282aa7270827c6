// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"

	"github.com/ubik80/bookCafe/internal/auth"
	"github.com/ubik80/bookCafe/internal/middleware"
	"github.com/ubik80/bookCafe/internal/model"
	"github.com/ubik80/bookCafe/internal/render"
	"github.com/ubik80/bookCafe/internal/service"
	"github.com/ubik80/bookCafe/internal/store"
	"github.com/ubik80/bookCafe/internal/ticker"
)

// AuthHandler handles registration, login and logout.
type AuthHandler struct {
	queries        *store.Queries
	renderer       *render.Renderer
	sessionManager *scs.SessionManager
	authService    *auth.Service
	eventService   *service.EventService
	news           ticker.Broadcaster
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(queries *store.Queries, renderer *render.Renderer, sm *scs.SessionManager,
	authService *auth.Service, events *service.EventService, news ticker.Broadcaster) *AuthHandler {
	return &AuthHandler{
		queries:        queries,
		renderer:       renderer,
		sessionManager: sm,
		authService:    authService,
		eventService:   events,
		news:           news,
	}
}

// RegisterForm renders the sign-up page.
func (h *AuthHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, "auth/register", "Sign up", nil)
}

// Register handles the sign-up form submission.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		flashError(w, r, h.renderer, RouteRegister, "Invalid form data.")
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")
	if username == "" || password == "" {
		flashError(w, r, h.renderer, RouteRegister, "Username and password are required.")
		return
	}

	_, err := h.queries.GetUserByUsername(r.Context(), username)
	if err == nil {
		flashError(w, r, h.renderer, RouteRegister, "Username already in use.")
		return
	}
	if !errors.Is(err, sql.ErrNoRows) {
		slog.Error("database error during registration", "error", err)
		flashError(w, r, h.renderer, RouteRegister, "Registration is unavailable, try again later.")
		return
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		slog.Error("password hashing failed", "error", err)
		flashError(w, r, h.renderer, RouteRegister, "Registration is unavailable, try again later.")
		return
	}

	user, err := h.queries.CreateUser(r.Context(), store.CreateUserParams{
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		slog.Error("creating user failed", "error", err)
		flashError(w, r, h.renderer, RouteRegister, "Registration is unavailable, try again later.")
		return
	}

	userRole, err := h.queries.GetRoleByName(r.Context(), model.RoleUser)
	if err == nil {
		err = h.queries.AssignRole(r.Context(), userRole.ID, user.ID)
	}
	if err != nil {
		slog.Error("assigning default role failed", "error", err, "user_id", user.ID)
	}

	slog.Info("account created", "user_id", user.ID, "username", username)
	_ = h.eventService.LogAuthEvent(r.Context(), model.EventLevelInfo, "Account created",
		&user.ID, map[string]any{"username": username})

	flashAndRedirect(w, r, h.renderer, RouteLogin, "New account created.", "success")
}

// LoginForm renders the login page.
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	// Already-authenticated users go straight to the catalog
	if h.sessionManager.GetInt64(r.Context(), middleware.SessionKeyUserID) > 0 {
		http.Redirect(w, r, RouteBooks, http.StatusSeeOther)
		return
	}
	h.renderPage(w, r, "auth/login", "Login", nil)
}

// Login handles the login form submission. The outcome taxonomy carries the
// lockout semantics: a locked account is refused before the password is
// checked, and stays refused until the reconciliation sweep resets it.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		flashError(w, r, h.renderer, RouteLogin, "Invalid form data.")
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")
	if username == "" || password == "" {
		flashError(w, r, h.renderer, RouteLogin, "Username and password are required.")
		return
	}

	outcome, user, err := h.authService.AttemptLogin(r.Context(), username, password)
	if err != nil {
		slog.Error("login attempt failed", "error", err, "username", username)
		flashError(w, r, h.renderer, RouteLogin, "Login is unavailable, try again later.")
		return
	}

	switch outcome {
	case auth.OutcomeUnknownUser:
		flashError(w, r, h.renderer, RouteRegister, "Register first.")
		return
	case auth.OutcomeLockedOut:
		slog.Warn("login attempt on locked account", "username", username)
		_ = h.eventService.LogAuthEvent(r.Context(), model.EventLevelWarning,
			"Login attempt on locked account", nil, map[string]any{"username": username})
		flashError(w, r, h.renderer, RouteLogin, "Too many failed login attempts.")
		return
	case auth.OutcomeInvalidPassword:
		slog.Info("unsuccessful login attempt", "username", username)
		_ = h.eventService.LogAuthEvent(r.Context(), model.EventLevelWarning,
			"Login failed: invalid password", nil, map[string]any{"username": username})
		flashError(w, r, h.renderer, RouteLogin, "Wrong username or password.")
		return
	}

	// Regenerate session ID to prevent session fixation
	if err := h.sessionManager.RenewToken(r.Context()); err != nil {
		slog.Error("session renewal error", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.sessionManager.Put(r.Context(), middleware.SessionKeyUserID, user.ID)

	slog.Info("user logged in", "user_id", user.ID, "username", user.Username)
	_ = h.eventService.LogAuthEvent(r.Context(), model.EventLevelInfo, "User logged in",
		&user.ID, map[string]any{"username": user.Username})
	if err := h.news.Publish(r.Context(), user.Username+" logged in."); err != nil {
		slog.Error("publishing news failed", "error", err)
	}

	flashAndRedirect(w, r, h.renderer, RouteBooks, "You are logged in.", "success")
}

// Logout clears the user's logged-in flag and destroys the transport
// session. Subsequent principal loads fail closed until the next login.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	if user == nil {
		http.Redirect(w, r, RouteLogin, http.StatusSeeOther)
		return
	}

	if err := h.authService.Logout(r.Context(), user.ID); err != nil {
		slog.Error("logout failed", "error", err, "user_id", user.ID)
		flashError(w, r, h.renderer, RouteBooks, "Logout is unavailable, try again later.")
		return
	}

	if err := h.sessionManager.Destroy(r.Context()); err != nil {
		slog.Error("session destroy error", "error", err)
	}

	slog.Info("user logged out", "user_id", user.ID, "username", user.Username)
	_ = h.eventService.LogAuthEvent(r.Context(), model.EventLevelInfo, "User logged out",
		&user.ID, map[string]any{"username": user.Username})
	if err := h.news.Publish(r.Context(), user.Username+" logged out."); err != nil {
		slog.Error("publishing news failed", "error", err)
	}

	flashAndRedirect(w, r, h.renderer, RouteLogin, "You are logged out.", "info")
}

func (h *AuthHandler) renderPage(w http.ResponseWriter, r *http.Request, name, title string, data any) {
	err := h.renderer.Render(w, r, name, render.TemplateData{
		Title:      title,
		Data:       data,
		LoggedIn:   middleware.GetUser(r) != nil,
		NavbarInfo: navbarInfo(r),
	})
	if err != nil {
		slog.Error("render error", "error", err, "template", name)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
