// Package phoenix implements the channel.Transport interface over a
// Phoenix-style websocket endpoint.
//
// Frames use the V2 array serialization [join_ref, ref, topic, event,
// payload]. Joins and leaves wait for their ref-matched phx_reply; pushes
// are fire-and-forget. A presence extension folds presence_state and
// presence_diff frames into held per-topic state and re-emits a full
// snapshot on every change, so consumers only ever see complete snapshots.
package phoenix
