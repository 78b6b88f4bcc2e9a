// Package healthcheck provides periodic health monitoring for upstreams.
//
// Each upstream gets its own goroutine that polls the /health endpoint at
// a configurable interval and updates the upstream's health status. When a
// dependency recovers while its circuit breaker is still open, the breaker
// is administratively reset so traffic resumes immediately instead of
// waiting out the open-state cool-down. The breaker's own lazy half-open
// probing is unaffected; this is an operational shortcut layered on top.
package healthcheck
