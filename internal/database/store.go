package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrUnknownSetting is returned when a settings key is not one of SettingKeys.
var ErrUnknownSetting = errors.New("unknown setting")

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// GetPage returns the page with the given id. Returns nil, nil if not found.
	GetPage(ctx context.Context, id string) (*Page, error)

	// ListPages returns all stored pages ordered by name.
	ListPages(ctx context.Context) ([]Page, error)

	// SavePage inserts a page or updates its name and token.
	SavePage(ctx context.Context, page *Page) error

	// AddPages inserts the pages whose ids are not stored yet and returns how many were added.
	AddPages(ctx context.Context, pages []Page) (int, error)

	// DeletePage removes a page. Removing an unknown page is not an error.
	DeletePage(ctx context.Context, id string) error

	// ListTemplates returns the pool of the given kind in insertion order.
	ListTemplates(ctx context.Context, kind TemplateKind) ([]Template, error)

	// AddTemplate stores a template in the given pool.
	AddTemplate(ctx context.Context, kind TemplateKind, body string) (*Template, error)

	// DeleteTemplate removes a template by id.
	DeleteTemplate(ctx context.Context, id int64) error

	// GetSettings returns the current toggles; unset toggles default to true.
	GetSettings(ctx context.Context) (Settings, error)

	// SetSetting writes a single toggle.
	SetSetting(ctx context.Context, key string, value bool) error

	// RecordProcessedEvent appends eventID to the admission log and trims the log
	// to the newest keep entries, in one transaction. It returns false if the id
	// was already recorded.
	RecordProcessedEvent(ctx context.Context, eventID string, keep int) (bool, error)

	// RecentProcessedEvents returns up to limit admitted ids, oldest first.
	RecentProcessedEvents(ctx context.Context, limit int) ([]string, error)

	// AppendHistory inserts entry and trims the history to the newest keep rows.
	AppendHistory(ctx context.Context, entry *HistoryEntry, keep int) error

	// ListHistory returns up to limit entries, newest first.
	ListHistory(ctx context.Context, limit int) ([]HistoryEntry, error)

	// CountHistory counts entries with the given status created at or after since.
	CountHistory(ctx context.Context, status HistoryStatus, since time.Time) (int, error)

	// ClearHistory deletes every history entry.
	ClearHistory(ctx context.Context) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) GetPage(ctx context.Context, id string) (*Page, error) {
	if id == "" {
		return nil, fmt.Errorf("page id cannot be empty")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var page Page
	err := s.db.GetContext(ctx, &page,
		`SELECT id, name, token, created_at, updated_at FROM pages WHERE id = ?`, id)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.DebugContext(ctx, "No page found", "page_id", id)
		return nil, nil

	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching page", "page_id", id, "error", err)
		return nil, err

	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting page", "page_id", id, "error", err)
		return nil, fmt.Errorf("failed to get page %s: %w", id, err)
	}

	return &page, nil
}

func (s *sqlxStore) ListPages(ctx context.Context) ([]Page, error) {
	var pages []Page
	err := s.db.SelectContext(ctx, &pages,
		`SELECT id, name, token, created_at, updated_at FROM pages ORDER BY name, id`)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error listing pages", "error", err)
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	return pages, nil
}

func (s *sqlxStore) SavePage(ctx context.Context, page *Page) error {
	if page == nil {
		return fmt.Errorf("cannot save nil page")
	}
	if page.ID == "" {
		return fmt.Errorf("page must have a non-empty id")
	}

	now := time.Now().UTC()
	page.CreatedAt = now
	page.UpdatedAt = now

	query := `
        INSERT INTO pages (id, name, token, created_at, updated_at)
        VALUES (:id, :name, :token, :created_at, :updated_at)
        ON CONFLICT(id) DO UPDATE SET
            name = excluded.name,
            token = excluded.token,
            updated_at = excluded.updated_at;
    `
	if _, err := s.db.NamedExecContext(ctx, query, page); err != nil {
		s.logger.ErrorContext(ctx, "Error saving page", "page_id", page.ID, "error", err)
		return fmt.Errorf("failed to save page %s: %w", page.ID, err)
	}

	s.logger.DebugContext(ctx, "Page saved successfully", "page_id", page.ID, "page_name", page.Name)
	return nil
}

func (s *sqlxStore) AddPages(ctx context.Context, pages []Page) (int, error) {
	if len(pages) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for adding pages", "error", err)
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	now := time.Now().UTC()
	added := 0
	for _, p := range pages {
		if p.ID == "" {
			continue
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO pages (id, name, token, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
             ON CONFLICT(id) DO NOTHING`,
			p.ID, p.Name, p.Token, now, now)
		if err != nil {
			s.logger.ErrorContext(ctx, "Error adding page", "page_id", p.ID, "error", err)
			return 0, fmt.Errorf("failed to add page %s: %w", p.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 1 {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction for adding pages", "error", err)
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "Pages added", "requested", len(pages), "added", added)
	return added, nil
}

func (s *sqlxStore) DeletePage(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE id = ?`, id); err != nil {
		s.logger.ErrorContext(ctx, "Error deleting page", "page_id", id, "error", err)
		return fmt.Errorf("failed to delete page %s: %w", id, err)
	}
	return nil
}

func (s *sqlxStore) ListTemplates(ctx context.Context, kind TemplateKind) ([]Template, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid template kind %q", kind)
	}

	var templates []Template
	err := s.db.SelectContext(ctx, &templates,
		`SELECT id, kind, body, created_at FROM templates WHERE kind = ? ORDER BY id`, kind)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error listing templates", "kind", kind, "error", err)
		return nil, fmt.Errorf("failed to list %s templates: %w", kind, err)
	}
	return templates, nil
}

func (s *sqlxStore) AddTemplate(ctx context.Context, kind TemplateKind, body string) (*Template, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid template kind %q", kind)
	}
	if body == "" {
		return nil, fmt.Errorf("template body cannot be empty")
	}

	tmpl := &Template{Kind: kind, Body: body, CreatedAt: time.Now().UTC()}
	res, err := s.db.NamedExecContext(ctx,
		`INSERT INTO templates (kind, body, created_at) VALUES (:kind, :body, :created_at)`, tmpl)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error adding template", "kind", kind, "error", err)
		return nil, fmt.Errorf("failed to add %s template: %w", kind, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		tmpl.ID = id
	} else {
		s.logger.WarnContext(ctx, "Could not retrieve last insert ID after adding template", "error", err)
	}
	return tmpl, nil
}

func (s *sqlxStore) DeleteTemplate(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id); err != nil {
		s.logger.ErrorContext(ctx, "Error deleting template", "template_id", id, "error", err)
		return fmt.Errorf("failed to delete template %d: %w", id, err)
	}
	return nil
}

func (s *sqlxStore) GetSettings(ctx context.Context) (Settings, error) {
	settings := DefaultSettings()

	var rows []settingRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT key, value FROM settings`); err != nil {
		s.logger.ErrorContext(ctx, "Error reading settings", "error", err)
		return settings, fmt.Errorf("failed to read settings: %w", err)
	}

	for _, row := range rows {
		value, err := strconv.ParseBool(row.Value)
		if err != nil {
			s.logger.WarnContext(ctx, "Ignoring malformed setting value", "key", row.Key, "value", row.Value)
			continue
		}
		switch row.Key {
		case SettingAutoReplyComments:
			settings.AutoReplyComments = value
		case SettingAutoReplyMessages:
			settings.AutoReplyMessages = value
		case SettingSendPrivateReply:
			settings.SendPrivateReply = value
		}
	}
	return settings, nil
}

func (s *sqlxStore) SetSetting(ctx context.Context, key string, value bool) error {
	known := false
	for _, k := range SettingKeys {
		if k == key {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, strconv.FormatBool(value), time.Now().UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Error writing setting", "key", key, "error", err)
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}

	s.logger.InfoContext(ctx, "Setting updated", "key", key, "value", value)
	return nil
}

func (s *sqlxStore) RecordProcessedEvent(ctx context.Context, eventID string, keep int) (bool, error) {
	if eventID == "" {
		return false, fmt.Errorf("event id cannot be empty")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for admission", "event_id", eventID, "error", err)
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO processed_events (event_id, admitted_at) VALUES (?, ?) ON CONFLICT(event_id) DO NOTHING`,
		eventID, time.Now().UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Error recording processed event", "event_id", eventID, "error", err)
		return false, fmt.Errorf("failed to record event %s: %w", eventID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if keep > 0 {
		_, err = tx.ExecContext(ctx, `
            DELETE FROM processed_events
            WHERE seq <= (SELECT seq FROM processed_events ORDER BY seq DESC LIMIT 1 OFFSET ?)`, keep)
		if err != nil {
			s.logger.ErrorContext(ctx, "Error trimming processed events", "keep", keep, "error", err)
			return false, fmt.Errorf("failed to trim processed events: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit admission", "event_id", eventID, "error", err)
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

func (s *sqlxStore) RecentProcessedEvents(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
        SELECT event_id FROM (
            SELECT seq, event_id FROM processed_events ORDER BY seq DESC LIMIT ?
        ) ORDER BY seq ASC`, limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error loading processed events", "error", err)
		return nil, fmt.Errorf("failed to load processed events: %w", err)
	}
	return ids, nil
}

func (s *sqlxStore) AppendHistory(ctx context.Context, entry *HistoryEntry, keep int) error {
	if entry == nil {
		return fmt.Errorf("cannot append nil history entry")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for history", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	res, err := tx.NamedExecContext(ctx, `
        INSERT INTO history (created_at, page_name, action, status, details, target_id)
        VALUES (:created_at, :page_name, :action, :status, :details, :target_id)`, entry)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error appending history", "action", entry.Action, "error", err)
		return fmt.Errorf("failed to append history: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}

	if keep > 0 {
		_, err = tx.ExecContext(ctx, `
            DELETE FROM history
            WHERE id <= (SELECT id FROM history ORDER BY id DESC LIMIT 1 OFFSET ?)`, keep)
		if err != nil {
			s.logger.ErrorContext(ctx, "Error trimming history", "keep", keep, "error", err)
			return fmt.Errorf("failed to trim history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit history entry", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *sqlxStore) ListHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	var entries []HistoryEntry
	err := s.db.SelectContext(ctx, &entries, `
        SELECT id, created_at, page_name, action, status, details, target_id
        FROM history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error listing history", "error", err)
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return entries, nil
}

func (s *sqlxStore) CountHistory(ctx context.Context, status HistoryStatus, since time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM history WHERE status = ? AND created_at >= ?`, status, since.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return count, nil
}

func (s *sqlxStore) ClearHistory(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		s.logger.ErrorContext(ctx, "Error clearing history", "error", err)
		return fmt.Errorf("failed to clear history: %w", err)
	}
	s.logger.InfoContext(ctx, "History cleared")
	return nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite.
	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)

	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)

	default:
		s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	}

	return nil
}

// rollback is deferred after BeginTxx; it is a no-op once the transaction committed.
func (s *sqlxStore) rollback(ctx context.Context, tx *sqlx.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.logger.WarnContext(ctx, "Error rolling back transaction", "error", err)
	}
}
