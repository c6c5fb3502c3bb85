// ABOUTME: Customer and Conversation types owned by the synchronization layer.
// ABOUTME: A conversation belongs to exactly one customer id at a time; the relation may be repointed.

package model

import "time"

// CustomerMetadata carries the optional identity hints supplied by the
// embedding page. ExternalID is the rebind key: when present, the backend
// lookup takes precedence over any cached customer id.
type CustomerMetadata struct {
	Name       string         `json:"name,omitempty"`
	Email      string         `json:"email,omitempty"`
	ExternalID string         `json:"external_id,omitempty"`
	Host       string         `json:"host,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// HasExternalID reports whether the metadata can drive an identity lookup.
func (m CustomerMetadata) HasExternalID() bool {
	return m.ExternalID != ""
}

// Customer is an end user as known to the backend.
type Customer struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	Email      string         `json:"email,omitempty"`
	ExternalID string         `json:"external_id,omitempty"`
	Host       string         `json:"host,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  *time.Time     `json:"created_at,omitempty"`
}

// Conversation is a server-side message thread. The backend returns
// conversations most-recent-first with nested messages; message ordering
// within a conversation is normalized by the synchronizer.
type Conversation struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Messages   []Message `json:"messages"`
}
