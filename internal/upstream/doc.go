// Package upstream models a remote dependency behind the gateway: its URL,
// a reverse proxy for forwarding requests, a health flag maintained by the
// health checker, and an EWMA of recent response times.
//
// Proxy transport errors are captured through the request context (see
// CaptureProxyError) rather than written to the client, so the gateway
// handler can feed them to the circuit breaker and choose the response
// itself.
package upstream
