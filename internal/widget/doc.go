// Package widget hosts the synchronization engine that ties the widget's
// pieces together: identity resolution, conversation sync, channel lifecycle,
// the message timeline, agent presence, and the host-page bridge.
//
// The engine is the only writer of widget state. Every entry point — user
// sends, host commands, inbound channel events, timer-driven re-fetches —
// serializes on one lock, so downstream components like the timeline
// reconciler never need their own coordination. A send's backend round-trip
// runs outside the lock, guarded by the in-flight flag, so inbound messages
// keep flowing while a conversation is being established.
package widget
