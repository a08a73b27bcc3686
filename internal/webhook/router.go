// Package webhook receives the platform's webhook calls: the subscription
// handshake and event deliveries, which it routes to the reply dispatcher.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/edgard/pagebot/internal/database"
	"github.com/edgard/pagebot/internal/dispatch"
)

// ErrMalformed is returned when a delivery body is not a JSON object.
var ErrMalformed = errors.New("malformed webhook payload")

const (
	objectPage    = "page"
	fieldFeed     = "feed"
	itemComment   = "comment"
	verbAdd       = "add"
	modeSubscribe = "subscribe"
	unknownUser   = "Unknown"
)

// Admitter gates comment events so each is handled once.
type Admitter interface {
	Admit(ctx context.Context, eventID string) (bool, error)
}

// Dispatcher delivers one reply on one channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request, snap dispatch.Snapshot) dispatch.Outcome
}

// SnapshotSource provides the settings and template pools read per event.
type SnapshotSource interface {
	GetSettings(ctx context.Context) (database.Settings, error)
	ListTemplates(ctx context.Context, kind database.TemplateKind) ([]database.Template, error)
}

// RouterDeps contains the collaborators of a Router.
type RouterDeps struct {
	Logger      *slog.Logger
	Guard       Admitter
	Dispatcher  Dispatcher
	Snapshots   SnapshotSource
	VerifyToken string
}

// Router implements the handshake and the delivery state machine.
type Router struct {
	deps     RouterDeps
	validate *validator.Validate
	logger   *slog.Logger
}

// NewRouter creates a Router.
func NewRouter(deps RouterDeps) *Router {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Router{
		deps:     deps,
		validate: validator.New(),
		logger:   deps.Logger.With("component", "webhook_router"),
	}
}

// Verify answers the subscription handshake. It returns the challenge and true
// only for mode "subscribe" with the configured token.
func (r *Router) Verify(mode, token, challenge string) (string, bool) {
	if mode != modeSubscribe || r.deps.VerifyToken == "" {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(r.deps.VerifyToken)) != 1 {
		return "", false
	}
	return challenge, true
}

// Summary counts what a delivery contained and what happened to it.
type Summary struct {
	Comments   int
	Duplicates int
	Messages   int
	Echoes     int
	Malformed  int
	Outcomes   []dispatch.Outcome
}

type envelope struct {
	Object string            `json:"object"`
	Entry  []json.RawMessage `json:"entry"`
}

type entry struct {
	ID        string            `json:"id"`
	Changes   []json.RawMessage `json:"changes"`
	Messaging []json.RawMessage `json:"messaging"`
}

type change struct {
	Field string `json:"field"`
	Value struct {
		Item      string `json:"item"`
		Verb      string `json:"verb"`
		CommentID string `json:"comment_id"`
		From      struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"from"`
	} `json:"value"`
}

type messaging struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Message map[string]any `json:"message"`
}

// commentEvent is a new comment extracted from a feed change.
type commentEvent struct {
	PageID    string `validate:"required"`
	CommentID string `validate:"required"`
	UserName  string
}

// messageEvent is a direct message extracted from a messaging item.
type messageEvent struct {
	PageID   string `validate:"required"`
	SenderID string `validate:"required"`
}

// HandleDelivery processes a delivery body to completion. Only a body that is
// not a JSON object yields an error; every malformed part inside it is skipped.
func (r *Router) HandleDelivery(ctx context.Context, body []byte) (Summary, error) {
	var sum Summary

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return sum, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Object != objectPage {
		r.logger.DebugContext(ctx, "Ignoring delivery for other object", "object", env.Object)
		return sum, nil
	}

	for i, raw := range env.Entry {
		var e entry
		if err := json.Unmarshal(raw, &e); err != nil {
			r.logger.WarnContext(ctx, "Skipping malformed entry", "index", i, "error", err)
			sum.Malformed++
			continue
		}
		r.handleEntry(ctx, e, &sum)
	}
	return sum, nil
}

func (r *Router) handleEntry(ctx context.Context, e entry, sum *Summary) {
	for i, raw := range e.Changes {
		var c change
		if err := json.Unmarshal(raw, &c); err != nil {
			r.logger.WarnContext(ctx, "Skipping malformed change", "page_id", e.ID, "index", i, "error", err)
			sum.Malformed++
			continue
		}
		if c.Field != fieldFeed || c.Value.Item != itemComment || c.Value.Verb != verbAdd {
			continue
		}

		ev := commentEvent{PageID: e.ID, CommentID: c.Value.CommentID, UserName: c.Value.From.Name}
		if ev.UserName == "" {
			ev.UserName = unknownUser
		}
		if err := r.validate.Struct(ev); err != nil {
			r.logger.WarnContext(ctx, "Skipping invalid comment event", "page_id", e.ID, "error", err)
			sum.Malformed++
			continue
		}
		r.handleComment(ctx, ev, sum)
	}

	for i, raw := range e.Messaging {
		var m messaging
		if err := json.Unmarshal(raw, &m); err != nil {
			r.logger.WarnContext(ctx, "Skipping malformed messaging item", "page_id", e.ID, "index", i, "error", err)
			sum.Malformed++
			continue
		}
		if len(m.Message) == 0 {
			continue
		}
		if m.Sender.ID == e.ID {
			// The page's own outgoing message echoed back.
			sum.Echoes++
			continue
		}

		ev := messageEvent{PageID: e.ID, SenderID: m.Sender.ID}
		if err := r.validate.Struct(ev); err != nil {
			r.logger.WarnContext(ctx, "Skipping invalid message event", "page_id", e.ID, "error", err)
			sum.Malformed++
			continue
		}
		r.handleMessage(ctx, ev, sum)
	}
}

func (r *Router) handleComment(ctx context.Context, ev commentEvent, sum *Summary) {
	log := r.logger.With("page_id", ev.PageID, "comment_id", ev.CommentID)
	log.InfoContext(ctx, "New comment", "user_name", ev.UserName)

	snap, err := r.snapshot(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to read settings and templates, skipping comment", "error", err)
		return
	}

	admitted, err := r.deps.Guard.Admit(ctx, ev.CommentID)
	if err != nil {
		log.ErrorContext(ctx, "Admission failed, skipping comment", "error", err)
		return
	}
	if !admitted {
		log.InfoContext(ctx, "Comment already processed, skipping")
		sum.Duplicates++
		return
	}
	sum.Comments++

	// Both channels are attempted whatever the other's outcome.
	for _, ch := range []dispatch.Channel{dispatch.ChannelPublicReply, dispatch.ChannelPrivateReply} {
		out := r.deps.Dispatcher.Dispatch(ctx, dispatch.Request{
			Channel:  ch,
			TargetID: ev.CommentID,
			PageID:   ev.PageID,
			UserName: ev.UserName,
		}, snap)
		log.DebugContext(ctx, "Dispatch finished", "channel", ch, "outcome", out.Kind, "reason", out.Reason())
		sum.Outcomes = append(sum.Outcomes, out)
	}
}

func (r *Router) handleMessage(ctx context.Context, ev messageEvent, sum *Summary) {
	log := r.logger.With("page_id", ev.PageID, "sender_id", ev.SenderID)
	log.InfoContext(ctx, "New message")

	snap, err := r.snapshot(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to read settings and templates, skipping message", "error", err)
		return
	}
	sum.Messages++

	out := r.deps.Dispatcher.Dispatch(ctx, dispatch.Request{
		Channel:  dispatch.ChannelDirectMessage,
		TargetID: ev.SenderID,
		PageID:   ev.PageID,
	}, snap)
	log.DebugContext(ctx, "Dispatch finished", "channel", dispatch.ChannelDirectMessage, "outcome", out.Kind, "reason", out.Reason())
	sum.Outcomes = append(sum.Outcomes, out)
}

func (r *Router) snapshot(ctx context.Context) (dispatch.Snapshot, error) {
	settings, err := r.deps.Snapshots.GetSettings(ctx)
	if err != nil {
		return dispatch.Snapshot{}, err
	}
	comments, err := r.deps.Snapshots.ListTemplates(ctx, database.TemplateComment)
	if err != nil {
		return dispatch.Snapshot{}, err
	}
	messages, err := r.deps.Snapshots.ListTemplates(ctx, database.TemplateMessage)
	if err != nil {
		return dispatch.Snapshot{}, err
	}
	return dispatch.Snapshot{
		Settings:         settings,
		CommentTemplates: bodies(comments),
		MessageTemplates: bodies(messages),
	}, nil
}

func bodies(templates []database.Template) []string {
	out := make([]string, 0, len(templates))
	for _, t := range templates {
		out = append(out, t.Body)
	}
	return out
}
