// Package pages links platform pages to the service: importing them from a
// user token and subscribing the app to their webhooks.
package pages

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/edgard/pagebot/internal/audit"
	"github.com/edgard/pagebot/internal/database"
	"github.com/edgard/pagebot/internal/graph"
)

// API is the part of the Graph client the service uses.
type API interface {
	ListAccounts(ctx context.Context, userToken string) ([]graph.Account, error)
	SubscribeApp(ctx context.Context, pageID, token string) error
}

// Store is the page storage the service uses.
type Store interface {
	ListPages(ctx context.Context) ([]database.Page, error)
	AddPages(ctx context.Context, pages []database.Page) (int, error)
	SavePage(ctx context.Context, page *database.Page) error
}

// Recorder appends history entries.
type Recorder interface {
	Record(ctx context.Context, entry database.HistoryEntry) error
}

// Service implements the page administration operations.
type Service struct {
	api      API
	store    Store
	recorder Recorder
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService creates a Service.
func NewService(api API, store Store, recorder Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		api:      api,
		store:    store,
		recorder: recorder,
		validate: validator.New(),
		logger:   logger.With("component", "pages"),
	}
}

// Add stores a single page after validating it.
func (s *Service) Add(ctx context.Context, page database.Page) error {
	if err := s.validate.Struct(page); err != nil {
		return fmt.Errorf("invalid page: %w", err)
	}
	return s.store.SavePage(ctx, &page)
}

// Fetch lists the pages a user token manages without storing them.
func (s *Service) Fetch(ctx context.Context, userToken string) ([]database.Page, error) {
	if userToken == "" {
		return nil, errors.New("user token required")
	}
	accounts, err := s.api.ListAccounts(ctx, userToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pages: %w", err)
	}

	pages := make([]database.Page, 0, len(accounts))
	for _, a := range accounts {
		pages = append(pages, database.Page{ID: a.ID, Name: a.Name, Token: a.AccessToken})
	}
	return pages, nil
}

// Import fetches the pages a user token manages and stores the new ones.
// It returns the fetched pages and how many were added.
func (s *Service) Import(ctx context.Context, userToken string) ([]database.Page, int, error) {
	pages, err := s.Fetch(ctx, userToken)
	if err != nil {
		return nil, 0, err
	}
	added, err := s.store.AddPages(ctx, pages)
	if err != nil {
		return pages, 0, err
	}
	s.logger.InfoContext(ctx, "Pages imported", "fetched", len(pages), "added", added)
	return pages, added, nil
}

// SubscribeResult is the per-page outcome of SubscribeAll.
type SubscribeResult struct {
	PageID   string
	PageName string
	Err      error
}

// SubscribeAll subscribes every stored page to feed and messages webhooks.
// One page failing does not stop the others.
func (s *Service) SubscribeAll(ctx context.Context) ([]SubscribeResult, error) {
	stored, err := s.store.ListPages(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]SubscribeResult, 0, len(stored))
	for _, p := range stored {
		name := p.Name
		if name == "" {
			name = "Unknown"
		}
		res := SubscribeResult{PageID: p.ID, PageName: name}

		if p.ID == "" || p.Token == "" {
			res.Err = errors.New("missing id or token")
			results = append(results, res)
			continue
		}

		res.Err = s.api.SubscribeApp(ctx, p.ID, p.Token)
		s.recordSubscription(ctx, res)
		results = append(results, res)
	}
	return results, nil
}

func (s *Service) recordSubscription(ctx context.Context, res SubscribeResult) {
	entry := database.HistoryEntry{PageName: res.PageName, Action: audit.ActionSubscribe, TargetID: res.PageID}

	var apiErr *graph.APIError
	switch {
	case res.Err == nil:
		entry.Status = database.StatusSuccess
	case errors.As(res.Err, &apiErr):
		entry.Status = database.StatusFailure
		entry.Details = audit.Truncate(apiErr.Message(), 50)
	default:
		// Transport failures are reported to the caller but not recorded.
		s.logger.WarnContext(ctx, "Subscription call failed", "page_id", res.PageID, "error", res.Err)
		return
	}

	if err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "Failed to record subscription", "page_id", res.PageID, "error", err)
	}
}
