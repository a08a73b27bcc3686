package database

import (
	"time"
)

// Page is one platform page the service answers for, together with its API token.
type Page struct {
	ID        string    `db:"id"         validate:"required"`
	Name      string    `db:"name"`
	Token     string    `db:"token"      validate:"required"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// TemplateKind selects a template pool.
type TemplateKind string

const (
	// TemplateComment is the pool used for public comment replies.
	TemplateComment TemplateKind = "comment"
	// TemplateMessage is the pool used for private replies and direct messages.
	TemplateMessage TemplateKind = "message"
)

// Valid reports whether k names a known pool.
func (k TemplateKind) Valid() bool {
	return k == TemplateComment || k == TemplateMessage
}

// Template is a stored reply template. Body may contain spintax groups.
type Template struct {
	ID        int64        `db:"id"         json:"id"`
	Kind      TemplateKind `db:"kind"       json:"kind"`
	Body      string       `db:"body"       json:"body"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}

// Setting keys understood by the store.
const (
	SettingAutoReplyComments = "auto_reply_comments"
	SettingAutoReplyMessages = "auto_reply_messages"
	SettingSendPrivateReply  = "send_private_reply"
)

// SettingKeys lists every known toggle in display order.
var SettingKeys = []string{SettingAutoReplyComments, SettingAutoReplyMessages, SettingSendPrivateReply}

// Settings holds the feature toggles. Toggles that were never written default to true.
type Settings struct {
	AutoReplyComments bool `json:"auto_reply_comments"`
	AutoReplyMessages bool `json:"auto_reply_messages"`
	SendPrivateReply  bool `json:"send_private_reply"`
}

// DefaultSettings returns the toggles used before any of them is written.
func DefaultSettings() Settings {
	return Settings{AutoReplyComments: true, AutoReplyMessages: true, SendPrivateReply: true}
}

// HistoryStatus is the outcome class recorded for a dispatch attempt.
type HistoryStatus string

const (
	StatusSuccess HistoryStatus = "success"
	StatusFailure HistoryStatus = "failure"
	StatusError   HistoryStatus = "error"
)

// HistoryEntry records one dispatch attempt (or one admin action such as a
// webhook subscription). A comment event usually produces two entries.
type HistoryEntry struct {
	ID        int64         `db:"id"         json:"id"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	PageName  string        `db:"page_name"  json:"page_name"`
	Action    string        `db:"action"     json:"action"`
	Status    HistoryStatus `db:"status"     json:"status"`
	Details   string        `db:"details"    json:"details"`
	TargetID  string        `db:"target_id"  json:"target_id"`
}

type settingRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}
