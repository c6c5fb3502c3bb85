// ABOUTME: Tests for presence state replication and diff application.
// ABOUTME: Covers snapshot replace, join merging by phx_ref, and key removal on last leave.

package phoenix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftchat/widgetsync/internal/model"
)

func ptr[T any](v T) *T { return &v }

func TestPresence_StateReplacesHeldState(t *testing.T) {
	var snapshots []model.PresenceState
	pt := newPresenceTopic(func(s model.PresenceState) { snapshots = append(snapshots, s) })

	pt.syncState(map[string]presenceEntry{
		"user:1": {Metas: []model.PresenceMeta{{UserID: ptr(1), PhxRef: "a"}}},
	})
	pt.syncState(map[string]presenceEntry{
		"user:2": {Metas: []model.PresenceMeta{{UserID: ptr(2), PhxRef: "b"}}},
	})

	require.Len(t, snapshots, 2)
	assert.NotContains(t, snapshots[1], "user:1", "a new full state discards the old one")
	assert.Contains(t, snapshots[1], "user:2")
}

func TestPresence_DiffJoinPrependsNewMetas(t *testing.T) {
	var last model.PresenceState
	pt := newPresenceTopic(func(s model.PresenceState) { last = s })

	pt.syncState(map[string]presenceEntry{
		"user:1": {Metas: []model.PresenceMeta{{UserID: ptr(1), Name: "old tab", PhxRef: "a"}}},
	})
	pt.syncDiff(presenceDiff{
		Joins: map[string]presenceEntry{
			"user:1": {Metas: []model.PresenceMeta{{UserID: ptr(1), Name: "new tab", PhxRef: "b"}}},
		},
	})

	require.Len(t, last["user:1"], 2)
	assert.Equal(t, "new tab", last["user:1"][0].Name, "newest session becomes the first meta")
	assert.Equal(t, "old tab", last["user:1"][1].Name)
}

func TestPresence_DiffLeaveRemovesMetaByRef(t *testing.T) {
	var last model.PresenceState
	pt := newPresenceTopic(func(s model.PresenceState) { last = s })

	pt.syncState(map[string]presenceEntry{
		"user:1": {Metas: []model.PresenceMeta{
			{UserID: ptr(1), PhxRef: "a"},
			{UserID: ptr(1), PhxRef: "b"},
		}},
	})
	pt.syncDiff(presenceDiff{
		Leaves: map[string]presenceEntry{
			"user:1": {Metas: []model.PresenceMeta{{UserID: ptr(1), PhxRef: "a"}}},
		},
	})

	require.Len(t, last["user:1"], 1)
	assert.Equal(t, "b", last["user:1"][0].PhxRef)
}

func TestPresence_LastLeaveRemovesKey(t *testing.T) {
	var last model.PresenceState
	pt := newPresenceTopic(func(s model.PresenceState) { last = s })

	pt.syncState(map[string]presenceEntry{
		"user:1": {Metas: []model.PresenceMeta{{UserID: ptr(1), PhxRef: "a"}}},
	})
	pt.syncDiff(presenceDiff{
		Leaves: map[string]presenceEntry{
			"user:1": {Metas: []model.PresenceMeta{{UserID: ptr(1), PhxRef: "a"}}},
		},
	})

	assert.NotContains(t, last, "user:1")
}

func TestPresence_SnapshotsAreCopies(t *testing.T) {
	var first model.PresenceState
	pt := newPresenceTopic(func(s model.PresenceState) {
		if first == nil {
			first = s
		}
	})

	pt.syncState(map[string]presenceEntry{
		"user:1": {Metas: []model.PresenceMeta{{UserID: ptr(1), PhxRef: "a"}}},
	})
	pt.syncDiff(presenceDiff{
		Leaves: map[string]presenceEntry{
			"user:1": {Metas: []model.PresenceMeta{{UserID: ptr(1), PhxRef: "a"}}},
		},
	})

	require.Contains(t, first, "user:1", "earlier snapshots must not see later mutations")
}
