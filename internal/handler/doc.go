// Package handler implements the gateway's request path.
//
// Incoming requests are routed to an upstream by the first path segment
// (/billing/invoices -> dependency "billing", upstream path /invoices) and
// forwarded through that dependency's circuit breaker. Fast rejections map
// to 503, call timeouts to 504, and transport failures to 502; completed
// upstream responses are relayed as-is, with 5xx statuses counted as
// breaker failures.
package handler
