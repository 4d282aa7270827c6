// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package service provides business logic helpers, currently the event
// logging used for the audit trail.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ubik80/bookCafe/internal/model"
	"github.com/ubik80/bookCafe/internal/store"
)

// EventService records audit events in the events table.
type EventService struct {
	queries *store.Queries
}

// NewEventService creates a new EventService.
func NewEventService(queries *store.Queries) *EventService {
	return &EventService{queries: queries}
}

// LogEvent creates a new event log entry. Failures are logged, not
// propagated; audit logging never blocks the action it describes.
func (s *EventService) LogEvent(ctx context.Context, level, category, message string, userID *int64, metadata map[string]any) error {
	var nullUserID sql.NullInt64
	if userID != nil {
		nullUserID = sql.NullInt64{Int64: *userID, Valid: true}
	}

	metadataJSON := "{}"
	if metadata != nil {
		if jsonBytes, err := json.Marshal(metadata); err == nil {
			metadataJSON = string(jsonBytes)
		}
	}

	_, err := s.queries.CreateEvent(ctx, store.CreateEventParams{
		Level:     level,
		Category:  category,
		Message:   message,
		UserID:    nullUserID,
		Metadata:  metadataJSON,
		CreatedAt: time.Now(),
	})
	if err != nil {
		slog.Error("failed to log event", "error", err, "message", message)
		return err
	}

	return nil
}

// LogAuthEvent records an authentication-related event.
func (s *EventService) LogAuthEvent(ctx context.Context, level, message string, userID *int64, metadata map[string]any) error {
	return s.LogEvent(ctx, level, model.EventCategoryAuth, message, userID, metadata)
}

// LogBookEvent records a catalog mutation event.
func (s *EventService) LogBookEvent(ctx context.Context, level, message string, userID *int64, metadata map[string]any) error {
	return s.LogEvent(ctx, level, model.EventCategoryBook, message, userID, metadata)
}
