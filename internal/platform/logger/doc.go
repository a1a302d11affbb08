// Package logger provides structured logging for the application.
//
// It uses the standard library log/slog package for structured JSON
// logging with configurable levels, plus helpers for carrying a
// request-scoped logger through a context.Context.
package logger
