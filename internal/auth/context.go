package auth

import "context"

// Session is the authenticated identity attached to a request context after
// the bearer token has been verified.
type Session struct {
	UserID         string
	Email          string
	OrganizationID string
	Role           string
}

type ctxKey int

const sessionKey ctxKey = 0

func ContextWithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext reports the session stored by ContextWithSession, if any.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}
