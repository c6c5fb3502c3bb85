// Package model defines the domain types shared across the widget engine:
// messages, conversations, customers and presence snapshots.
//
// The central invariant lives on Message: within a conversation's timeline, at
// most one entry exists per distinct (sent_at, body) pair contributed by the
// local customer. An optimistic entry and its later server echo are the same
// logical message; CorrelatesWith is the predicate the reconciler uses to
// collapse them into one slot.
package model
