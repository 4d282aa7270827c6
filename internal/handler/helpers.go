// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package handler contains the HTTP handlers for registration, login,
// the book catalog and the news stream.
package handler

import (
	"net/http"

	"github.com/ubik80/bookCafe/internal/middleware"
	"github.com/ubik80/bookCafe/internal/render"
)

// Route paths shared between handlers and cmd wiring.
const (
	RouteRoot     = "/"
	RouteRegister = "/register"
	RouteLogin    = "/login"
	RouteLogout   = "/logout"
	RouteBooks    = "/books"
	RouteBooksAdd = "/books/add"
	RouteBookID   = "/books/{id}"
	RouteNews     = "/news/stream"
)

// flashAndRedirect sets a flash message and redirects.
func flashAndRedirect(w http.ResponseWriter, r *http.Request, renderer *render.Renderer, target, message, flashType string) {
	renderer.SetFlash(r, message, flashType)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// flashError sets an error flash message and redirects.
func flashError(w http.ResponseWriter, r *http.Request, renderer *render.Renderer, target, message string) {
	flashAndRedirect(w, r, renderer, target, message, "error")
}

// navbarInfo returns the navbar status line for the current principal.
func navbarInfo(r *http.Request) string {
	if user := middleware.GetUser(r); user != nil {
		return "logged in as " + user.Username
	}
	return "not logged in"
}
