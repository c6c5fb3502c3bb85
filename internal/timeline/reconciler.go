// ABOUTME: The timeline engine: merges optimistic local messages with server-pushed messages.
// ABOUTME: Guarantees no duplicate entries and derives seen-state transitions.

package timeline

import (
	"log/slog"
	"sort"
	"time"

	"github.com/driftchat/widgetsync/internal/model"
)

// Reconciler exclusively owns the in-memory message timeline. It is not
// goroutine safe: the engine serializes all access through its dispatch loop,
// which is what makes the in-place collapse rule safe without locking.
type Reconciler struct {
	messages []model.Message
	logger   *slog.Logger
}

// NewReconciler creates an empty timeline. Pass nil logger for default.
func NewReconciler(logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		logger: logger.With("component", "timeline"),
	}
}

// Reset rebuilds the timeline as the greeting followed by messages sorted by
// created_at ascending. An empty greeting installs no synthetic entry.
func (r *Reconciler) Reset(greeting string, messages []model.Message) {
	sorted := make([]model.Message, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].CreatedAt, sorted[j].CreatedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})

	r.messages = r.messages[:0]
	if greeting != "" {
		r.messages = append(r.messages, model.Bot(greeting, time.Now()))
	}
	r.messages = append(r.messages, sorted...)
}

// AppendOptimistic inserts a locally-sent message at the end of the timeline
// before the server has confirmed it.
func (r *Reconciler) AppendOptimistic(msg model.Message) {
	r.messages = append(r.messages, msg)
}

// Receive merges a server-pushed message into the timeline. If an optimistic
// entry correlates by (sent_at, body), the server copy replaces it in place,
// preserving timeline position; the two are the same logical message and must
// never appear as two entries. Otherwise the message is appended (the path
// for agent-originated or cross-tab messages).
//
// Returns true when the message collapsed into an existing optimistic entry.
func (r *Reconciler) Receive(msg model.Message) bool {
	for i, existing := range r.messages {
		if existing.IsConfirmed() {
			continue
		}
		if existing.CorrelatesWith(msg) {
			r.messages[i] = msg
			r.logger.Debug("optimistic message confirmed",
				"position", i,
				"message_id", stringOrEmpty(msg.ID))
			return true
		}
	}

	r.messages = append(r.messages, msg)
	return false
}

// MarkAllSeen stamps seen_at on every entry lacking one. Entries already seen
// keep their earlier timestamp, which makes the operation idempotent.
// Returns whether any entry changed.
func (r *Reconciler) MarkAllSeen(now time.Time) bool {
	changed := false
	for i := range r.messages {
		if r.messages[i].SeenAt == nil {
			at := now
			r.messages[i].SeenAt = &at
			changed = true
		}
	}
	return changed
}

// OldestUnseenAgentMessage returns the single oldest timeline entry that is
// an unseen agent message, or nil when none exists.
func (r *Reconciler) OldestUnseenAgentMessage() *model.Message {
	for i := range r.messages {
		if r.messages[i].IsFromAgent() && r.messages[i].IsUnseen() {
			msg := r.messages[i]
			return &msg
		}
	}
	return nil
}

// Messages returns a copy of the timeline in order.
func (r *Reconciler) Messages() []model.Message {
	out := make([]model.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Len returns the number of timeline entries.
func (r *Reconciler) Len() int {
	return len(r.messages)
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
