// Package admin exposes the circuit breaker registry for operators.
//
// Routes:
//
//	GET  /admin/breakers              all breaker snapshots with derived values
//	GET  /admin/breakers/{name}       one breaker (unknown names report CLOSED)
//	POST /admin/breakers/{name}/reset force a breaker back to CLOSED
//	POST /admin/breakers/{name}/state body {"state": "OPEN"} forces a transition
//
// Overrides on unknown names are accepted and have no effect, matching the
// registry's no-op semantics.
package admin
