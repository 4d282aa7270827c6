// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	"github.com/ubik80/bookCafe/internal/imaging"
	"github.com/ubik80/bookCafe/internal/middleware"
	"github.com/ubik80/bookCafe/internal/model"
	"github.com/ubik80/bookCafe/internal/render"
	"github.com/ubik80/bookCafe/internal/service"
	"github.com/ubik80/bookCafe/internal/store"
	"github.com/ubik80/bookCafe/internal/ticker"
)

// Session keys for the persisted search filters.
const (
	sessionKeyFilterTitle  = "filter_title"
	sessionKeyFilterAuthor = "filter_author"
	sessionKeyFilterSortBy = "filter_sort_by"
)

// BooksHandler handles the catalog routes.
type BooksHandler struct {
	queries        *store.Queries
	renderer       *render.Renderer
	sessionManager *scs.SessionManager
	eventService   *service.EventService
	news           ticker.Broadcaster
	covers         *imaging.Processor
	sanitizer      *bluemonday.Policy
	maxCoverBytes  int64
}

// NewBooksHandler creates a new BooksHandler.
func NewBooksHandler(queries *store.Queries, renderer *render.Renderer, sm *scs.SessionManager,
	events *service.EventService, news ticker.Broadcaster, maxCoverBytes int64) *BooksHandler {
	return &BooksHandler{
		queries:        queries,
		renderer:       renderer,
		sessionManager: sm,
		eventService:   events,
		news:           news,
		covers:         imaging.NewProcessor(maxCoverBytes),
		sanitizer:      bluemonday.StrictPolicy(),
		maxCoverBytes:  maxCoverBytes,
	}
}

// findPageData is the template payload for the catalog page.
type findPageData struct {
	Books  []model.Book
	Title  string
	Author string
	SortBy string
}

// List renders the catalog with the session-persisted search filters.
// A POST stores the submitted filters and redirects back to the GET,
// so refreshing the page re-runs the same search.
func (h *BooksHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			flashError(w, r, h.renderer, RouteBooks, "Invalid form data.")
			return
		}
		h.sessionManager.Put(ctx, sessionKeyFilterTitle, r.FormValue("title"))
		h.sessionManager.Put(ctx, sessionKeyFilterAuthor, r.FormValue("author"))
		h.sessionManager.Put(ctx, sessionKeyFilterSortBy, model.ValidSortBy(r.FormValue("sort_by")))
		http.Redirect(w, r, RouteBooks, http.StatusSeeOther)
		return
	}

	title := h.sessionManager.GetString(ctx, sessionKeyFilterTitle)
	author := h.sessionManager.GetString(ctx, sessionKeyFilterAuthor)
	sortBy := model.ValidSortBy(h.sessionManager.GetString(ctx, sessionKeyFilterSortBy))

	books, err := h.queries.SearchBooks(ctx, store.SearchBooksParams{
		Title:  title,
		Author: author,
		SortBy: sortBy,
	})
	if err != nil {
		slog.Error("searching books failed", "error", err)
		flashError(w, r, h.renderer, RouteRoot, "The library is unavailable, try again later.")
		return
	}

	h.renderPage(w, r, "books/find", "Find a book", findPageData{
		Books:  books,
		Title:  title,
		Author: author,
		SortBy: sortBy,
	})
}

// AddForm renders the add-book page.
func (h *BooksHandler) AddForm(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, "books/add", "Add a book", nil)
}

// Add handles the add-book form submission, including the optional cover
// picture upload.
func (h *BooksHandler) Add(w http.ResponseWriter, r *http.Request) {
	// Cap the whole multipart body; the cover itself is checked again by
	// the processor.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxCoverBytes+64*1024)
	if err := r.ParseMultipartForm(h.maxCoverBytes + 64*1024); err != nil {
		flashError(w, r, h.renderer, RouteBooksAdd, "Cover picture size is too large.")
		return
	}

	title := r.FormValue("title")
	author := r.FormValue("author")
	description := h.sanitizer.Sanitize(r.FormValue("description"))
	if title == "" || author == "" {
		flashError(w, r, h.renderer, RouteBooksAdd, "Title and author are required.")
		return
	}

	exists, err := h.queries.BookExists(r.Context(), title, author)
	if err != nil {
		slog.Error("checking for existing book failed", "error", err)
		flashError(w, r, h.renderer, RouteBooksAdd, "The library is unavailable, try again later.")
		return
	}
	if exists {
		flashError(w, r, h.renderer, RouteBooksAdd, "Book already in library.")
		return
	}

	var cover []byte
	if file, header, err := r.FormFile("cover_picture"); err == nil {
		defer func() { _ = file.Close() }()
		cover, err = h.covers.Process(file, header.Filename)
		if err != nil {
			switch {
			case errors.Is(err, imaging.ErrTooLarge):
				flashError(w, r, h.renderer, RouteBooksAdd, "Cover picture size is too large.")
			case errors.Is(err, imaging.ErrBadFormat), errors.Is(err, imaging.ErrNotAnImage):
				flashError(w, r, h.renderer, RouteBooksAdd, "Wrong file format.")
			default:
				slog.Error("processing cover failed", "error", err)
				flashError(w, r, h.renderer, RouteBooksAdd, "Could not process the cover picture.")
			}
			return
		}
	}

	user := middleware.GetUser(r)
	book, err := h.queries.CreateBook(r.Context(), store.CreateBookParams{
		Title:        title,
		Author:       author,
		Description:  description,
		CoverPicture: cover,
		UserCreated:  user.ID,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		slog.Error("creating book failed", "error", err)
		flashError(w, r, h.renderer, RouteBooksAdd, "The library is unavailable, try again later.")
		return
	}

	slog.Info("book added to library", "book_id", book.ID, "title", book.Title)
	_ = h.eventService.LogBookEvent(r.Context(), model.EventLevelInfo, "Book added to library",
		&user.ID, map[string]any{"book_id": book.ID, "title": book.Title, "author": book.Author})
	if err := h.news.Publish(r.Context(), "'"+book.Title+"' added to the library."); err != nil {
		slog.Error("publishing news failed", "error", err)
	}

	flashAndRedirect(w, r, h.renderer, RouteBooksAdd, "Book added to library.", "success")
}

// Delete removes a book from the library.
func (h *BooksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	book, err := h.queries.GetBookByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.NotFound(w, r)
			return
		}
		slog.Error("loading book failed", "error", err, "book_id", id)
		flashError(w, r, h.renderer, RouteBooks, "The library is unavailable, try again later.")
		return
	}

	if err := h.queries.DeleteBook(r.Context(), id); err != nil {
		slog.Error("deleting book failed", "error", err, "book_id", id)
		flashError(w, r, h.renderer, RouteBooks, "The library is unavailable, try again later.")
		return
	}

	user := middleware.GetUser(r)
	slog.Info("book deleted", "book_id", book.ID, "title", book.Title)
	_ = h.eventService.LogBookEvent(r.Context(), model.EventLevelInfo, "Book deleted",
		&user.ID, map[string]any{"book_id": book.ID, "title": book.Title})

	flashAndRedirect(w, r, h.renderer, RouteBooks, "Book deleted from library.", "info")
}

// Cover serves the stored cover picture for a book.
func (h *BooksHandler) Cover(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	cover, err := h.queries.GetBookCover(r.Context(), id)
	if err != nil || len(cover) == 0 {
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			slog.Error("loading cover failed", "error", err, "book_id", id)
		}
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(cover)
}

func (h *BooksHandler) renderPage(w http.ResponseWriter, r *http.Request, name, title string, data any) {
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
