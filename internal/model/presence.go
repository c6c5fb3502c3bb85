// ABOUTME: Presence snapshot types for the availability room.
// ABOUTME: AgentPresenceInfo is a derived snapshot, rebuilt in full on every sync.

package model

// PresenceMeta is one metadata record inside a presence sync. Only records
// carrying a user id describe agents; everything else (customer tabs, bots
// without identity) is ignored by the tracker.
type PresenceMeta struct {
	UserID *int   `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	PhxRef string `json:"phx_ref,omitempty"`
}

// PresenceState is a full presence snapshot keyed by tracked entity.
type PresenceState map[string][]PresenceMeta

// AgentPresenceInfo describes one currently-available agent. It has no
// independent lifecycle: it exists only inside the snapshot produced by the
// most recent presence sync.
type AgentPresenceInfo struct {
	UserID int    `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}
