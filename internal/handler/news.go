// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ubik80/bookCafe/internal/ticker"
)

// newsPollInterval is how often the stream checks for a fresh news line.
const newsPollInterval = 2 * time.Second

// NewsHandler streams the navbar news ticker over server-sent events.
type NewsHandler struct {
	news ticker.Broadcaster
}

// NewNewsHandler creates a new NewsHandler.
func NewNewsHandler(news ticker.Broadcaster) *NewsHandler {
	return &NewsHandler{news: news}
}

// Stream pushes the current news line to the browser whenever it changes.
// The connection is held open until the client disconnects.
func (h *NewsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	subscriber := uuid.NewString()
	slog.Debug("news stream opened", "subscriber", subscriber)
	defer slog.Debug("news stream closed", "subscriber", subscriber)

	ctx := r.Context()
	var last string

	// Send the current line immediately, then poll for changes.
	tick := time.NewTicker(newsPollInterval)
	defer tick.Stop()

	for {
		news, err := h.news.Latest(ctx)
		if err != nil && !errors.Is(err, ticker.ErrNoNews) {
			slog.Error("reading news failed", "error", err, "subscriber", subscriber)
		}
		if err == nil && news != last {
			last = news
			fmt.Fprintf(w, "data: %s\n\n", news)
			flusher.Flush()
		}

		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}
