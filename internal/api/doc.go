// Package api implements the backend request collaborator: a JSON/HTTP
// client covering the identity validity check, external-id customer lookup,
// conversation fetch/create, and customer create/update.
//
// The package deliberately specifies shape only, not the full backend
// protocol. Errors are returned plainly; whether a failure is fatal is the
// caller's policy decision (fetch failures degrade to a greeting-only
// timeline, customer update failures retry once via unconditional creation).
package api
