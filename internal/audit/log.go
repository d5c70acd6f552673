package audit

import (
	"context"
	"errors"
	"strings"

	"mediclaim.org/internal/auth"
	"mediclaim.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request and principal context.
// Auth lifecycle events (auth.login, auth.signup, auth.refresh, auth.logout)
// all flow through here.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	logger := obs.Logger()
	entry := logger.Log().
		Str("type", "audit").
		Str("event", event)
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry = entry.Str("request_id", rid)
	}
	if principal, ok := auth.PrincipalFromContext(ctx); ok {
		entry = entry.Str("user_id", principal.ID)
	}
	if len(fields) > 0 {
		entry = entry.Fields(fields)
	}
	entry.Send()
	return nil
}
