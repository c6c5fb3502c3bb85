// ABOUTME: Tracks which agents are currently available from presence sync snapshots.
// ABOUTME: Every sync is a full replace; stale entries never outlive the sync that omits them.

package presence

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/driftchat/widgetsync/internal/model"
)

// Tracker maintains the set of currently-available agents. It consumes
// full-snapshot presence syncs from the availability room.
type Tracker struct {
	mu     sync.RWMutex
	agents []model.AgentPresenceInfo
	logger *slog.Logger
}

// NewTracker creates a tracker. Pass nil logger for default.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		logger: logger.With("component", "presence"),
	}
}

// Sync rebuilds the agent list from scratch out of a presence snapshot:
// each tracked entity contributes its first metadata record, and only
// records carrying a user id survive. The previous list is discarded
// entirely, never merged.
func (t *Tracker) Sync(state model.PresenceState) {
	agents := make([]model.AgentPresenceInfo, 0, len(state))
	for _, metas := range state {
		if len(metas) == 0 {
			continue
		}
		first := metas[0]
		if first.UserID == nil {
			continue
		}
		agents = append(agents, model.AgentPresenceInfo{
			UserID: *first.UserID,
			Name:   first.Name,
			Email:  first.Email,
		})
	}
	// Map iteration order is random; keep the snapshot stable for consumers.
	sort.Slice(agents, func(i, j int) bool { return agents[i].UserID < agents[j].UserID })

	t.mu.Lock()
	t.agents = agents
	t.mu.Unlock()

	t.logger.Debug("presence synced", "available_agents", len(agents))
}

// Available returns the agents present in the most recent sync.
func (t *Tracker) Available() []model.AgentPresenceInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.AgentPresenceInfo, len(t.agents))
	copy(out, t.agents)
	return out
}

// AnyAvailable reports whether at least one agent is present.
func (t *Tracker) AnyAvailable() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.agents) > 0
}
