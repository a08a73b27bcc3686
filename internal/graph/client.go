// Package graph is a small client for the page platform's Graph API: replies to
// comments, private replies, page messages, account listing and webhook subscription.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public Graph API host.
	DefaultBaseURL = "https://graph.facebook.com"
	// DefaultAPIVersion is the API version path segment.
	DefaultAPIVersion = "v19.0"
	// DefaultTimeout bounds a single outbound call.
	DefaultTimeout = 10 * time.Second

	maxErrorBody = 4096
)

// APIError is returned when the API answers with a status other than 200.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api returned status %d: %s", e.StatusCode, e.Body)
}

// Message extracts error.message from a JSON error body, falling back to the raw body.
func (e *APIError) Message() string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(e.Body), &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return e.Body
}

// Config holds the client settings.
type Config struct {
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
}

// Client performs one HTTP call per method invocation; it never retries.
type Client struct {
	baseURL    string
	version    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client. Zero config fields take the package defaults.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		version:    cfg.APIVersion,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "graph_client"),
	}
}

// ReplyToComment posts a public reply under a comment.
func (c *Client) ReplyToComment(ctx context.Context, commentID, message, token string) error {
	form := url.Values{"message": {message}, "access_token": {token}}
	return c.postForm(ctx, url.PathEscape(commentID)+"/comments", form, nil)
}

// SendPrivateReply sends a private message to the author of a comment.
func (c *Client) SendPrivateReply(ctx context.Context, commentID, message, token string) error {
	form := url.Values{"message": {message}, "access_token": {token}}
	return c.postForm(ctx, url.PathEscape(commentID)+"/private_replies", form, nil)
}

type sendMessageRequest struct {
	Recipient   recipient   `json:"recipient"`
	Message     messageText `json:"message"`
	AccessToken string      `json:"access_token"`
}

type recipient struct {
	ID string `json:"id"`
}

type messageText struct {
	Text string `json:"text"`
}

// SendMessage sends a direct message from a page to a user.
func (c *Client) SendMessage(ctx context.Context, pageID, recipientID, text, token string) error {
	body, err := json.Marshal(sendMessageRequest{
		Recipient:   recipient{ID: recipientID},
		Message:     messageText{Text: text},
		AccessToken: token,
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(url.PathEscape(pageID)+"/messages"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

// Account is a page returned by ListAccounts.
type Account struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

// ListAccounts returns the pages a user token manages, including their page tokens.
func (c *Client) ListAccounts(ctx context.Context, userToken string) ([]Account, error) {
	q := url.Values{
		"fields":       {"id,name,access_token"},
		"limit":        {"100"},
		"access_token": {userToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("me/accounts")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	var out struct {
		Data []Account `json:"data"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// SubscribeApp subscribes the app to a page's feed and messages webhooks.
func (c *Client) SubscribeApp(ctx context.Context, pageID, token string) error {
	form := url.Values{"subscribed_fields": {"feed,messages"}, "access_token": {token}}
	return c.postForm(ctx, url.PathEscape(pageID)+"/subscribed_apps", form, nil)
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + "/" + c.version + "/" + path
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

// do sends req once. Transport failures are wrapped; non-200 answers become *APIError.
func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error repeats the full URL, which may carry an access token.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		c.logger.WarnContext(req.Context(), "Graph API call failed", "path", req.URL.Path, "error", err)
		return fmt.Errorf("graph api request to %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(req.Context(), "Graph API call finished",
		"path", req.URL.Path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode graph api response: %w", err)
	}
	return nil
}
