// Package logger provides structured JSON logging with configurable log levels.
// It wraps the standard log/slog package and provides a simple interface for
// application-wide logging with component-scoped derivation.
package logger
