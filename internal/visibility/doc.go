// Package visibility implements the gate that decides when unseen agent
// messages should be marked as seen, based on page visibility and
// widget-open state. The gate holds only flags; acting on the decision
// (stamping seen times, pushing the acknowledgment) belongs to the engine.
package visibility
