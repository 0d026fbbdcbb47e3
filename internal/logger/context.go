package logger

import "context"

type contextKey int

const (
	requestIDKey contextKey = iota
	jobRunIDKey
)

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request ID from the context.
// Returns an empty string if no request ID is set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithJobRunID tags ctx with the correlation id of a deals job run.
func WithJobRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobRunIDKey, id)
}

// JobRunID returns the job run id stored in ctx, or "".
func JobRunID(ctx context.Context) string {
	id, _ := ctx.Value(jobRunIDKey).(string)
	return id
}
