package logger

import (
	"context"
	"log/slog"
)

type contextKey string

const SessionIDKey contextKey = "session_id"
const ClientIDKey contextKey = "client_id"

func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}

func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(SessionIDKey).(string); ok {
		return id
	}
	return ""
}

func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ClientIDKey, id)
}

func GetClientID(ctx context.Context) string {
	if id, ok := ctx.Value(ClientIDKey).(string); ok {
		return id
	}
	return ""
}

// FromContext returns the default logger annotated with the session and
// client ids carried by ctx.
func FromContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id := GetSessionID(ctx); id != "" {
		l = l.With("session", id)
	}
	if id := GetClientID(ctx); id != "" {
		l = l.With("client", id)
	}
	return l
}
