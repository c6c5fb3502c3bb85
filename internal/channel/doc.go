// Package channel manages the widget's realtime subscriptions over one
// persistent transport connection.
//
// # Channel roles
//
// Three named roles exist against the same connection:
//
//   - availability room (room:{accountID}): joined once at startup, feeds
//     agent presence.
//   - lobby (conversation:lobby:{customerID}): joined only while no
//     conversation exists yet; its sole purpose is learning about
//     conversation creation.
//   - conversation (conversation:{conversationID}): the primary live
//     channel, joined with the customer id as auth context. At most one is
//     ever active; joining a new one first leaves the previous one.
//
// Subscription failures are logged, never escalated — a dead channel is not
// fatal to the widget's other functions.
package channel
