// Package logging provides a custom slog handler that forwards logs at
// WARN level and above to the database-backed event log for auditing.
package logging

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/ubik80/bookCafe/internal/model"
	"github.com/ubik80/bookCafe/internal/store"
)

// EventLogHandler is a slog.Handler that wraps another handler and also
// writes WARN and ERROR level records to the event log.
type EventLogHandler struct {
	inner   slog.Handler
	queries *store.Queries
	level   slog.Level
}

// NewEventLogHandler creates an EventLogHandler that wraps the given
// handler. Records at WARN and above are written to both sinks.
func NewEventLogHandler(inner slog.Handler, queries *store.Queries) *EventLogHandler {
	return &EventLogHandler{
		inner:   inner,
		queries: queries,
		level:   slog.LevelWarn,
	}
}

// Enabled implements slog.Handler.
func (h *EventLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *EventLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}
	if r.Level >= h.level {
		h.writeToEventLog(r)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *EventLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &EventLogHandler{inner: h.inner.WithAttrs(attrs), queries: h.queries, level: h.level}
}

// WithGroup implements slog.Handler.
func (h *EventLogHandler) WithGroup(name string) slog.Handler {
	return &EventLogHandler{inner: h.inner.WithGroup(name), queries: h.queries, level: h.level}
}

func (h *EventLogHandler) writeToEventLog(r slog.Record) {
	level := model.EventLevelWarning
	if r.Level >= slog.LevelError {
		level = model.EventLevelError
	}

	// Background context so the record lands even when the request context
	// is already cancelled.
	_, _ = h.queries.CreateEvent(context.Background(), store.CreateEventParams{
		Level:     level,
		Category:  inferCategory(r.Message),
		Message:   r.Message,
		UserID:    sql.NullInt64{},
		Metadata:  attrsJSON(r),
		CreatedAt: r.Time,
	})
}

// inferCategory guesses an event category from the log message.
func inferCategory(message string) string {
	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "login") || strings.Contains(msg, "logout") || strings.Contains(msg, "auth"):
		return model.EventCategoryAuth
	case strings.Contains(msg, "book"):
		return model.EventCategoryBook
	case strings.Contains(msg, "sweep"):
		return model.EventCategorySweep
	case strings.Contains(msg, "user"):
		return model.EventCategoryUser
	default:
		return model.EventCategorySystem
	}
}

// attrsJSON collects the record attributes into a flat JSON object.
func attrsJSON(r slog.Record) string {
	if r.NumAttrs() == 0 {
		return "{}"
	}

	var sb strings.Builder
	sb.WriteString("{")
	first := true
	r.Attrs(func(a slog.Attr) bool {
		if !first {
			sb.WriteString(",")
		}
		first = false
		sb.WriteString(`"`)
		sb.WriteString(escapeJSON(a.Key))
		sb.WriteString(`":"`)
		sb.WriteString(escapeJSON(a.Value.String()))
		sb.WriteString(`"`)
		return true
	})
	sb.WriteString("}")
	return sb.String()
}

// escapeJSON escapes special characters in a string for JSON.
func escapeJSON(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
