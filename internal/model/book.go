// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import "time"

// Book sort orders accepted by the catalog search.
const (
	SortByTitle  = "title"
	SortByAuthor = "author"
)

// Book represents a catalog entry. CoverPicture is stored as a blob and
// may be nil when no cover was uploaded.
type Book struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	Description  string    `json:"description"`
	CoverPicture []byte    `json:"-"`
	UserCreated  int64     `json:"user_created"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasCover reports whether a cover picture is stored for the book.
func (b *Book) HasCover() bool {
	return len(b.CoverPicture) > 0
}

// ValidSortBy normalizes a user-supplied sort key, falling back to title.
func ValidSortBy(s string) string {
	if s == SortByAuthor {
		return SortByAuthor
	}
	return SortByTitle
}
