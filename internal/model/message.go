// ABOUTME: Message timeline entry with optimistic/confirmed lifecycle fields.
// ABOUTME: Correlation between an optimistic entry and its server echo is keyed by (sent_at, body).

package model

import (
	"strings"
	"time"
)

// MessageType is a local-only display tag. The server is not guaranteed to
// populate it, so sender classification must go through IsFromAgent /
// IsFromCustomer rather than this field.
type MessageType string

const (
	MessageTypeCustomer MessageType = "customer"
	MessageTypeAgent    MessageType = "agent"
	MessageTypeBot      MessageType = "bot"
)

// Message is a single conversation timeline entry. Optimistic entries have no
// ID and no CreatedAt; the presence of CreatedAt is the signal that the server
// has confirmed the message.
type Message struct {
	ID         *string     `json:"id,omitempty"`
	Body       string      `json:"body"`
	FileIDs    []string    `json:"file_ids,omitempty"`
	CustomerID *string     `json:"customer_id,omitempty"`
	UserID     *int        `json:"user_id,omitempty"`
	Type       MessageType `json:"type,omitempty"`
	SentAt     *time.Time  `json:"sent_at,omitempty"`
	CreatedAt  *time.Time  `json:"created_at,omitempty"`
	SeenAt     *time.Time  `json:"seen_at,omitempty"`
}

// IsConfirmed reports whether the server has assigned a creation timestamp.
func (m Message) IsConfirmed() bool {
	return m.CreatedAt != nil
}

// IsFromAgent reports whether the message was sent by an agent (has a user id).
func (m Message) IsFromAgent() bool {
	return m.UserID != nil
}

// IsFromCustomer reports whether the message was sent by a customer.
func (m Message) IsFromCustomer() bool {
	return m.CustomerID != nil
}

// IsUnseen reports whether the recipient side has not yet marked this message seen.
func (m Message) IsUnseen() bool {
	return m.SeenAt == nil
}

// IsEmpty reports whether the message carries neither non-whitespace text nor
// attachments. Empty drafts are rejected before sending.
func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Body) == "" && len(m.FileIDs) == 0
}

// CorrelatesWith reports whether other is the same logical message as m,
// using the (sent_at, body) correlation key. Timestamps are compared at
// millisecond granularity to tolerate wire formatting differences, and an
// empty body is treated as equal to an absent one.
func (m Message) CorrelatesWith(other Message) bool {
	if m.SentAt == nil || other.SentAt == nil {
		return false
	}
	if !timesCorrelate(*m.SentAt, *other.SentAt) {
		return false
	}
	return m.Body == other.Body
}

// timesCorrelate compares two timestamps as date-equal rather than
// representation-equal. Millisecond truncation matches the precision the wire
// format round-trips.
func timesCorrelate(a, b time.Time) bool {
	return a.Truncate(time.Millisecond).Equal(b.Truncate(time.Millisecond))
}

// Bot builds the synthetic greeting message shown before any real traffic.
// It is the only message with neither a customer id nor a user id.
func Bot(body string, at time.Time) Message {
	return Message{
		Body:      body,
		Type:      MessageTypeBot,
		SentAt:    &at,
		CreatedAt: &at,
		SeenAt:    &at,
	}
}
