// Package audit writes append-only JSON event lines for security-relevant
// actions: credential issuance, refusals, and scoping interventions.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"fenceline.dev/internal/auth"
	"fenceline.dev/internal/obs"
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

// LogEvent writes an audit entry enriched with the request id and, when a
// session is attached, the acting user and account.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if session, ok := auth.SessionFromContext(ctx); ok {
		entry["user_id"] = session.User.ID
		entry["account_id"] = session.AccountID()
	}
	if len(fields) > 0 {
		copied := make(map[string]any, len(fields))
		for k, v := range fields {
			copied[k] = v
		}
		entry["fields"] = copied
	} else {
		entry["fields"] = map[string]any{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
