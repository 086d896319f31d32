package log

import "context"

// Fields are structured key/value pairs attached to a log entry.
type Fields map[string]any

// Logger is the structured logger handed to long-lived components such as the
// HTTP server. Entries carry the trace of ctx when there is one.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Fields)
	Info(ctx context.Context, msg string, fields ...Fields)
	Warn(ctx context.Context, msg string, fields ...Fields)
	Error(ctx context.Context, msg string, err error, fields ...Fields)
	Fatal(ctx context.Context, msg string, err error, fields ...Fields) // zerolog exits the process
	With(fields Fields) Logger
}
