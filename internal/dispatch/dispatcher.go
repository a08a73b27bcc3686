// Package dispatch delivers a single reply on a single channel for a single event:
// it checks the toggle, resolves the page token, picks and expands a template,
// performs one outbound call and records the outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"

	"github.com/edgard/pagebot/internal/audit"
	"github.com/edgard/pagebot/internal/database"
	"github.com/edgard/pagebot/internal/graph"
	"github.com/edgard/pagebot/internal/spintax"
)

const (
	previewLength = 50
	reasonLength  = 100
)

var (
	// ErrDisabled means the channel's toggle is off.
	ErrDisabled = errors.New("channel disabled")
	// ErrNoCredential means no token is stored for the page.
	ErrNoCredential = errors.New("no credential for page")
	// ErrNoTemplate means the channel's template pool is empty.
	ErrNoTemplate = errors.New("template pool empty")
)

// Channel is one of the outbound reply mechanisms.
type Channel string

const (
	ChannelPublicReply   Channel = "public_comment_reply"
	ChannelPrivateReply  Channel = "private_reply"
	ChannelDirectMessage Channel = "direct_message"
)

// OutcomeKind classifies a dispatch result.
type OutcomeKind string

const (
	Sent                OutcomeKind = "sent"
	SkippedDisabled     OutcomeKind = "skipped_disabled"
	SkippedNoCredential OutcomeKind = "skipped_no_credential"
	SkippedNoTemplate   OutcomeKind = "skipped_no_template"
	Failed              OutcomeKind = "failed"
	Errored             OutcomeKind = "errored"
)

// Outcome is the result of one Dispatch call. Err is set for every kind but Sent.
type Outcome struct {
	Kind OutcomeKind
	Text string
	Err  error
}

// Reason is the human readable cause of a non-Sent outcome.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Request identifies what to answer.
type Request struct {
	Channel Channel
	// TargetID is the comment id for comment channels and the sender id for direct messages.
	TargetID string
	PageID   string
	// UserName is the author's display name, used in history details.
	UserName string
}

// Snapshot is the settings and template pools read once for an event.
type Snapshot struct {
	Settings         database.Settings
	CommentTemplates []string
	MessageTemplates []string
}

// Credentials resolves page tokens. A nil page with a nil error means absent.
type Credentials interface {
	GetPage(ctx context.Context, id string) (*database.Page, error)
}

// Sender performs the outbound platform calls.
type Sender interface {
	ReplyToComment(ctx context.Context, commentID, message, token string) error
	SendPrivateReply(ctx context.Context, commentID, message, token string) error
	SendMessage(ctx context.Context, pageID, recipientID, text, token string) error
}

// Recorder appends history entries.
type Recorder interface {
	Record(ctx context.Context, entry database.HistoryEntry) error
}

// Deps contains the collaborators of a Dispatcher.
type Deps struct {
	Logger      *slog.Logger
	Credentials Credentials
	Sender      Sender
	Recorder    Recorder
	// Expand resolves spintax; defaults to spintax.Expand.
	Expand func(string) string
	// Pick returns an index in [0, n); defaults to a uniform random choice.
	Pick func(n int) int
}

// Dispatcher sends replies. It holds no per-event state and is safe for concurrent use.
type Dispatcher struct {
	deps   Deps
	logger *slog.Logger
}

// New creates a Dispatcher.
func New(deps Deps) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Expand == nil {
		deps.Expand = spintax.Expand
	}
	if deps.Pick == nil {
		deps.Pick = rand.IntN
	}
	return &Dispatcher{deps: deps, logger: deps.Logger.With("component", "dispatcher")}
}

// Dispatch makes at most one outbound call for req and never retries.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, snap Snapshot) Outcome {
	log := d.logger.With("channel", req.Channel, "page_id", req.PageID, "target_id", req.TargetID)

	if !enabled(req.Channel, snap.Settings) {
		log.DebugContext(ctx, "Channel disabled, skipping")
		return Outcome{Kind: SkippedDisabled, Err: ErrDisabled}
	}

	page, err := d.deps.Credentials.GetPage(ctx, req.PageID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to resolve page credential", "error", err)
		return Outcome{Kind: Errored, Err: fmt.Errorf("resolving credential: %w", err)}
	}
	if page == nil || page.Token == "" {
		log.WarnContext(ctx, "No credential for page, skipping")
		if req.Channel == ChannelPublicReply {
			d.record(ctx, database.HistoryEntry{
				PageName: "Unknown",
				Action:   audit.ActionError,
				Status:   database.StatusFailure,
				Details:  fmt.Sprintf("no token for page %s", req.PageID),
				TargetID: req.TargetID,
			})
		}
		return Outcome{Kind: SkippedNoCredential, Err: fmt.Errorf("%w %s", ErrNoCredential, req.PageID)}
	}

	pool := snap.MessageTemplates
	if req.Channel == ChannelPublicReply {
		pool = snap.CommentTemplates
	}
	if len(pool) == 0 {
		log.WarnContext(ctx, "Template pool empty, skipping")
		return Outcome{Kind: SkippedNoTemplate, Err: ErrNoTemplate}
	}

	text := d.deps.Expand(pool[d.deps.Pick(len(pool))])

	err = d.send(ctx, req, text, page.Token)
	entry := database.HistoryEntry{
		PageName: page.Name,
		Action:   action(req.Channel),
		TargetID: req.TargetID,
	}

	var apiErr *graph.APIError
	switch {
	case err == nil:
		log.InfoContext(ctx, "Reply sent", "user_name", req.UserName)
		entry.Status = database.StatusSuccess
		entry.Details = successDetails(req, text)
		d.record(ctx, entry)
		return Outcome{Kind: Sent, Text: text}

	case errors.As(err, &apiErr):
		log.WarnContext(ctx, "Reply rejected by platform", "status", apiErr.StatusCode, "body", audit.Truncate(apiErr.Body, reasonLength))
		entry.Status = database.StatusFailure
		entry.Details = audit.Truncate(apiErr.Body, reasonLength)
		d.record(ctx, entry)
		return Outcome{Kind: Failed, Text: text, Err: err}

	default:
		log.WarnContext(ctx, "Reply call failed", "error", err)
		entry.Status = database.StatusError
		entry.Details = audit.Truncate(err.Error(), reasonLength)
		d.record(ctx, entry)
		return Outcome{Kind: Errored, Text: text, Err: err}
	}
}

func (d *Dispatcher) send(ctx context.Context, req Request, text, token string) error {
	switch req.Channel {
	case ChannelPublicReply:
		return d.deps.Sender.ReplyToComment(ctx, req.TargetID, text, token)
	case ChannelPrivateReply:
		return d.deps.Sender.SendPrivateReply(ctx, req.TargetID, text, token)
	default:
		return d.deps.Sender.SendMessage(ctx, req.PageID, req.TargetID, text, token)
	}
}

// record never fails the dispatch; the reply has already happened or not.
func (d *Dispatcher) record(ctx context.Context, entry database.HistoryEntry) {
	if d.deps.Recorder == nil {
		return
	}
	if err := d.deps.Recorder.Record(ctx, entry); err != nil {
		d.logger.ErrorContext(ctx, "Failed to record history", "action", entry.Action, "error", err)
	}
}

func enabled(ch Channel, s database.Settings) bool {
	switch ch {
	case ChannelPublicReply:
		return s.AutoReplyComments
	case ChannelPrivateReply:
		return s.SendPrivateReply
	case ChannelDirectMessage:
		return s.AutoReplyMessages
	}
	return false
}

func action(ch Channel) string {
	switch ch {
	case ChannelPublicReply:
		return audit.ActionPublicReply
	case ChannelPrivateReply:
		return audit.ActionPrivateReply
	}
	return audit.ActionMessageReply
}

func successDetails(req Request, text string) string {
	preview := audit.Truncate(text, previewLength)
	switch req.Channel {
	case ChannelPublicReply:
		return fmt.Sprintf("reply to %s: %s", req.UserName, preview)
	case ChannelPrivateReply:
		return fmt.Sprintf("message to %s: %s", req.UserName, preview)
	}
	return preview
}
