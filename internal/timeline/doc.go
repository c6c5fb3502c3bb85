// Package timeline implements the message reconciler, the core of the
// synchronization engine.
//
// The timeline is an append-only ordered sequence of messages with one
// exception: when a server-pushed message correlates with a still-optimistic
// local entry by (sent_at, body), the server copy replaces that entry in
// place. Correlation by time+body rather than body alone keeps two distinct
// messages with identical text apart; correlation by time+body rather than a
// client-minted temporary id avoids requiring the backend to echo ids back.
package timeline
