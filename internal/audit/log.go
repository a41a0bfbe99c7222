package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"worklane.org/internal/obs"
)

type ctxKey string

const (
	requestIDKey ctxKey = "audit_request_id"
	actorKey     ctxKey = "audit_actor"
)

type actor struct {
	userID         string
	organizationID string
}

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithActor attaches the acting user to the context so every event in the
// request carries who did it.
func WithActor(ctx context.Context, userID, organizationID string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey, actor{
		userID:         userID,
		organizationID: strings.TrimSpace(organizationID),
	})
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

// LogEvent writes an audit log entry enriched with request and session context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	return logEvent(ctx, "info", event, fields)
}

// LogEventWarn is LogEvent at warn severity, used for destructive operations
// such as hard deletes.
func LogEventWarn(ctx context.Context, event string, fields map[string]any) error {
	return logEvent(ctx, "warn", event, fields)
}

func logEvent(ctx context.Context, level, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"level": level,
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if ctx != nil {
		if a, ok := ctx.Value(actorKey).(actor); ok {
			entry["user_id"] = a.userID
			if a.organizationID != "" {
				entry["organization_id"] = a.organizationID
			}
		}
	}
	if len(fields) > 0 {
		copyFields := make(map[string]any, len(fields))
		for k, v := range fields {
			copyFields[k] = v
		}
		entry["fields"] = copyFields
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
