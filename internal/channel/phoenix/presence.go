// ABOUTME: Presence extension: turns presence_state/presence_diff frames into full snapshots.
// ABOUTME: Diffs are applied to held state and the whole snapshot is re-emitted each time.

package phoenix

import (
	"github.com/driftchat/widgetsync/internal/model"
)

// presenceEntry is the wire shape of one tracked key's presence.
type presenceEntry struct {
	Metas []model.PresenceMeta `json:"metas"`
}

// presenceDiff is the wire shape of a presence_diff payload.
type presenceDiff struct {
	Joins  map[string]presenceEntry `json:"joins"`
	Leaves map[string]presenceEntry `json:"leaves"`
}

// presenceTopic holds the replicated presence state for one topic.
type presenceTopic struct {
	state model.PresenceState
	fn    func(model.PresenceState)
}

func newPresenceTopic(fn func(model.PresenceState)) *presenceTopic {
	return &presenceTopic{
		state: model.PresenceState{},
		fn:    fn,
	}
}

// syncState replaces the held state with a full server snapshot.
func (p *presenceTopic) syncState(entries map[string]presenceEntry) {
	next := make(model.PresenceState, len(entries))
	for key, entry := range entries {
		next[key] = append([]model.PresenceMeta(nil), entry.Metas...)
	}
	p.state = next
	p.emit()
}

// syncDiff applies joins and leaves to the held state. Joined metas are
// prepended ahead of surviving ones so "first meta record" reflects the
// newest session, matching the reference presence semantics.
func (p *presenceTopic) syncDiff(diff presenceDiff) {
	for key, joined := range diff.Joins {
		existing := p.state[key]
		merged := append([]model.PresenceMeta(nil), joined.Metas...)
		for _, meta := range existing {
			if !containsRef(joined.Metas, meta.PhxRef) {
				merged = append(merged, meta)
			}
		}
		p.state[key] = merged
	}

	for key, left := range diff.Leaves {
		var remaining []model.PresenceMeta
		for _, meta := range p.state[key] {
			if !containsRef(left.Metas, meta.PhxRef) {
				remaining = append(remaining, meta)
			}
		}
		if len(remaining) == 0 {
			delete(p.state, key)
		} else {
			p.state[key] = remaining
		}
	}

	p.emit()
}

// emit delivers a copy of the current snapshot to the registered callback.
func (p *presenceTopic) emit() {
	if p.fn == nil {
		return
	}
	snapshot := make(model.PresenceState, len(p.state))
	for key, metas := range p.state {
		snapshot[key] = append([]model.PresenceMeta(nil), metas...)
	}
	p.fn(snapshot)
}

func containsRef(metas []model.PresenceMeta, ref string) bool {
	if ref == "" {
		return false
	}
	for _, m := range metas {
		if m.PhxRef == ref {
			return true
		}
	}
	return false
}
