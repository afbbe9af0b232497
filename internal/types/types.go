// Package types contains the core domain types shared across all WallCue
// internal packages. It deliberately has zero imports of other WallCue packages
// so that the store, dispatch, and sync layers can all import from it without
// creating import cycles.
package types

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a message in the queue.
type Status string

const (
	// StatusQueued means the message is waiting to be shown on the wall.
	StatusQueued Status = "queued"
	// StatusSent means the message is currently on the wall (or was the last
	// one pushed to it).
	StatusSent Status = "sent"
	// StatusExpired means the message's countdown ran out, or it was
	// superseded by the next message in the cycle.
	StatusExpired Status = "expired"
	// StatusCancelled means an operator (local or remote) withdrew the
	// message. A cancelled queued message is removed from the store entirely;
	// a cancelled sent message is returned to StatusQueued instead.
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusSent, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// LabelType classifies the contextual prefix shown alongside a message.
// It is metadata only — never rendered into the message text itself.
type LabelType string

const (
	LabelTableNumber  LabelType = "table_number"
	LabelCustomerName LabelType = "customer_name"
	LabelCustom       LabelType = "custom"
	LabelNone         LabelType = "none"
)

// Valid reports whether lt is one of the known label types.
func (lt LabelType) Valid() bool {
	switch lt {
	case LabelTableNumber, LabelCustomerName, LabelCustom, LabelNone:
		return true
	}
	return false
}

// Message is a unit of displayable content queued for the LED wall.
//
// Design rules:
//   - ID is a ULID string assigned at creation and immutable afterwards. The
//     same logical message carries the same ID on every peer device — peer
//     reconciliation depends on it.
//   - Text is always stored upper-cased; the wall renders it verbatim.
//   - ExpiresAt is computed LOCALLY from the device's countdown setting. A
//     message received from a peer gets a freshly recomputed expiry, never
//     the peer's.
type Message struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Identifier  string    `json:"identifier"`
	LabelType   LabelType `json:"label_type"`
	CustomLabel string    `json:"custom_label"`
	Status      Status    `json:"status"`

	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	SentAt    *time.Time `json:"sent_at,omitempty"`

	// Priority is an ordering hint. The rotation does not consult it yet; it
	// is carried so peers agree on it once ordering becomes configurable.
	Priority int `json:"priority"`
}

// NormalizeText upper-cases and trims the display string the way every
// mutation path (local add/edit and remote insert) must.
func NormalizeText(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Clone returns a copy of the message. Timestamp pointers are duplicated so
// the caller can mutate the copy freely.
func (m *Message) Clone() *Message {
	c := *m
	if m.ExpiresAt != nil {
		t := *m.ExpiresAt
		c.ExpiresAt = &t
	}
	if m.SentAt != nil {
		t := *m.SentAt
		c.SentAt = &t
	}
	return &c
}

// Expired reports whether the message's countdown has run out at the given
// instant. Messages without an expiry never expire.
func (m *Message) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && m.ExpiresAt.Before(now)
}

// OSCSettings is the video-engine addressing configuration exchanged between
// peers via settings_sync envelopes.
//
// ClearClip is transmitted on the wire for compatibility but is ALWAYS
// re-derived as StartingClip+3 on receipt — the transmitted value is never
// trusted (see dispatch.Rotation).
type OSCSettings struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Layer        int    `json:"layer"`
	StartingClip int    `json:"starting_clip"`
	ClearClip    int    `json:"clear_clip"`
}
