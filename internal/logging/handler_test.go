package logging

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ubik80/bookCafe/internal/model"
	"github.com/ubik80/bookCafe/internal/store"
	"github.com/ubik80/bookCafe/internal/testutil"
)

func newTestEventLogger(t *testing.T) (*slog.Logger, *store.Queries, func()) {
	t.Helper()

	db, cleanup := testutil.TestDB(t)
	queries := store.New(db)
	inner := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewEventLogHandler(inner, queries)), queries, cleanup
}

func TestEventLogHandler_WarnReachesEventLog(t *testing.T) {
	logger, queries, cleanup := newTestEventLogger(t)
	defer cleanup()

	logger.Warn("login failed", "username", "alice")

	events, err := queries.ListRecentEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRecentEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	e := events[0]
	if e.Level != model.EventLevelWarning {
		t.Errorf("level = %q, want %q", e.Level, model.EventLevelWarning)
	}
	if e.Category != model.EventCategoryAuth {
		t.Errorf("category = %q, want %q", e.Category, model.EventCategoryAuth)
	}
	if e.Message != "login failed" {
		t.Errorf("message = %q", e.Message)
	}
	if e.Metadata != `{"username":"alice"}` {
		t.Errorf("metadata = %q", e.Metadata)
	}
}

func TestEventLogHandler_ErrorLevel(t *testing.T) {
	logger, queries, cleanup := newTestEventLogger(t)
	defer cleanup()

	logger.Error("sweep tick failed")

	events, err := queries.ListRecentEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRecentEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Level != model.EventLevelError {
		t.Errorf("level = %q, want %q", events[0].Level, model.EventLevelError)
	}
	if events[0].Category != model.EventCategorySweep {
		t.Errorf("category = %q, want %q", events[0].Category, model.EventCategorySweep)
	}
}

func TestEventLogHandler_InfoSkipsEventLog(t *testing.T) {
	logger, queries, cleanup := newTestEventLogger(t)
	defer cleanup()

	logger.Info("server started")

	events, err := queries.ListRecentEvents(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRecentEvents: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want 0 for info level", len(events))
	}
}

func TestInferCategory(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{"login rate limit exceeded", model.EventCategoryAuth},
		{"book deleted", model.EventCategoryBook},
		{"sweep tick failed", model.EventCategorySweep},
		{"failed to refresh user activity", model.EventCategoryUser},
		{"disk almost full", model.EventCategorySystem},
	}
	for _, c := range cases {
		if got := inferCategory(c.message); got != c.want {
			t.Errorf("inferCategory(%q) = %q, want %q", c.message, got, c.want)
		}
	}
}
