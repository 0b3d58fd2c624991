package audit

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"hrdesk.org/internal/auth"
	"hrdesk.org/internal/obs"
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

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request and actor context.
// Audit entries are log lines, not rows: the durable password trail lives in
// the password_history table.
func LogEvent(ctx context.Context, event string, fields map[string]any) {
	event = strings.TrimSpace(event)
	if event == "" {
		return
	}
	zfields := []zap.Field{
		zap.String("type", "audit"),
		zap.String("event", event),
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		zfields = append(zfields, zap.String("request_id", rid))
	}
	if claims, ok := auth.ClaimsFromContext(ctx); ok {
		zfields = append(zfields, zap.String("actor_id", claims.EmployeeID))
	}
	for k, v := range fields {
		zfields = append(zfields, zap.Any(k, v))
	}
	obs.Logger().Info("audit", zfields...)
}
