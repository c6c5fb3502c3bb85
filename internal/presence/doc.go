// Package presence derives the set of currently-available agents from the
// availability room's presence syncs. The derived snapshot has no lifecycle
// of its own: it is rebuilt in full on every sync and never mutated
// incrementally.
package presence
