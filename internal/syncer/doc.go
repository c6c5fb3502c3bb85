// Package syncer establishes the widget's conversation state on startup and
// keeps it converging afterwards.
//
// Initialization resolves the customer identity, discovers the newest
// conversation (or installs the greeting-only timeline), joins the right
// channels, and surfaces the oldest unseen agent message. When no
// conversation exists yet, a lobby subscription waits for the backend's
// conversation:created push and re-runs discovery after a fixed debounce
// delay — a deliberate tolerance for read-after-write lag, not a
// correctness mechanism.
package syncer
