// Package audit keeps the append-only record of dispatch attempts.
package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/edgard/pagebot/internal/database"
)

// DefaultRetention is how many entries the persisted history keeps.
const DefaultRetention = 1000

// Actions recorded in the history.
const (
	ActionPublicReply  = "public reply"
	ActionPrivateReply = "private reply"
	ActionMessageReply = "message reply"
	ActionSubscribe    = "webhook subscription"
	ActionError        = "error"
)

// Store is the persistence the log needs.
type Store interface {
	AppendHistory(ctx context.Context, entry *database.HistoryEntry, keep int) error
	ListHistory(ctx context.Context, limit int) ([]database.HistoryEntry, error)
	CountHistory(ctx context.Context, status database.HistoryStatus, since time.Time) (int, error)
	ClearHistory(ctx context.Context) error
}

// Log appends history entries and trims the persisted copy.
type Log struct {
	store     Store
	retention int
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a Log. A retention of zero or less uses DefaultRetention.
func New(store Store, retention int, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Log{
		store:     store,
		retention: retention,
		now:       time.Now,
		logger:    logger.With("component", "audit_log"),
	}
}

// Record appends entry and returns once it is persisted.
func (l *Log) Record(ctx context.Context, entry database.HistoryEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now().UTC()
	}
	if err := l.store.AppendHistory(ctx, &entry, l.retention); err != nil {
		return fmt.Errorf("failed to record %s for %s: %w", entry.Action, entry.PageName, err)
	}

	l.logger.DebugContext(ctx, "History recorded",
		"page_name", entry.PageName, "action", entry.Action, "status", entry.Status, "target_id", entry.TargetID)
	return nil
}

// List returns up to limit entries, newest first.
func (l *Log) List(ctx context.Context, limit int) ([]database.HistoryEntry, error) {
	return l.store.ListHistory(ctx, limit)
}

// SuccessesToday counts successful entries since local midnight.
func (l *Log) SuccessesToday(ctx context.Context) (int, error) {
	now := l.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return l.store.CountHistory(ctx, database.StatusSuccess, midnight)
}

// Clear removes every entry.
func (l *Log) Clear(ctx context.Context) error {
	return l.store.ClearHistory(ctx)
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
