// Package audit records state-changing lending calls as JSON lines on the
// shared service logger.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/peace-bassey/BitTrust/internal/auth"
	"github.com/peace-bassey/BitTrust/internal/lending"
	"github.com/peace-bassey/BitTrust/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id attached by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request and caller context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":     time.Now().UTC().Format(time.RFC3339Nano),
		"type":   "audit",
		"event":  event,
		"fields": map[string]any{},
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		entry["user_id"] = userID
	}
	if len(fields) > 0 {
		entry["fields"] = maps.Clone(fields)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}

// LendingCall records the outcome of op. Rejections carry the error kind,
// never the raw message.
func LendingCall(ctx context.Context, op string, err error, fields map[string]any) {
	f := make(map[string]any, len(fields)+2)
	maps.Copy(f, fields)
	if err != nil {
		f["outcome"] = "rejected"
		f["error_kind"] = lending.Kind(err)
	} else {
		f["outcome"] = "ok"
	}
	if logErr := LogEvent(ctx, "lending."+op, f); logErr != nil {
		obs.LogEvent("error", "audit_failed", map[string]any{"op": op, "err": logErr})
	}
}
