// Package guard admits inbound event ids exactly once per process lifetime
// and records each admission durably before reporting it.
package guard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// DefaultRetention is how many admitted ids the persisted log keeps.
const DefaultRetention = 500

// EventLog is the durable side of the guard.
type EventLog interface {
	// RecordProcessedEvent persists eventID, trimming the log to keep entries.
	// It returns false if the id is already persisted.
	RecordProcessedEvent(ctx context.Context, eventID string, keep int) (bool, error)

	// RecentProcessedEvents returns up to limit persisted ids, oldest first.
	RecentProcessedEvents(ctx context.Context, limit int) ([]string, error)
}

// Guard is a mutex-guarded set of admitted ids backed by an EventLog.
// The in-memory set only grows.
type Guard struct {
	mu        sync.Mutex
	seen      map[string]struct{}
	log       EventLog
	retention int
	logger    *slog.Logger
}

// New creates a Guard. A retention of zero or less uses DefaultRetention.
func New(eventLog EventLog, retention int, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Guard{
		seen:      make(map[string]struct{}),
		log:       eventLog,
		retention: retention,
		logger:    logger.With("component", "idempotency_guard"),
	}
}

// Load seeds the in-memory set from the persisted log.
func (g *Guard) Load(ctx context.Context) error {
	ids, err := g.log.RecentProcessedEvents(ctx, g.retention)
	if err != nil {
		return fmt.Errorf("failed to load admitted events: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range ids {
		g.seen[id] = struct{}{}
	}

	g.logger.InfoContext(ctx, "Loaded admitted events", "count", len(ids))
	return nil
}

// Admit reports whether eventID is seen for the first time. A true result
// means the id is already durable. On a persistence error the id is not
// admitted, so a later redelivery can try again.
func (g *Guard) Admit(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, fmt.Errorf("event id cannot be empty")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.seen[eventID]; ok {
		g.logger.DebugContext(ctx, "Event already admitted", "event_id", eventID)
		return false, nil
	}

	recorded, err := g.log.RecordProcessedEvent(ctx, eventID, g.retention)
	if err != nil {
		g.logger.ErrorContext(ctx, "Failed to persist admission", "event_id", eventID, "error", err)
		return false, fmt.Errorf("failed to persist admission of %s: %w", eventID, err)
	}

	g.seen[eventID] = struct{}{}
	if !recorded {
		// Persisted by an earlier run but trimmed out of what Load saw,
		// or written by another process sharing the database.
		g.logger.InfoContext(ctx, "Event already persisted", "event_id", eventID)
		return false, nil
	}

	g.logger.DebugContext(ctx, "Event admitted", "event_id", eventID)
	return true, nil
}

// Len returns the number of ids in the in-memory set.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
