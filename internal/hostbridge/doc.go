// Package hostbridge defines the two-way contract between the widget engine
// and the page embedding it.
//
// Outbound, the engine emits fire-and-forget Events through a Sink; the
// concrete transport (a postMessage-style bridge in a browser, a JSON-line
// writer in the terminal client) is an external collaborator. Inbound, the
// host sends {event, payload} commands which ParseCommand turns into a closed
// Command union, making unhandled cases an exhaustiveness concern at the
// dispatch site rather than a silent string mismatch.
package hostbridge
