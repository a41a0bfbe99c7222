// Package email defines the outbound mail collaborator. Delivery is
// fire-and-forget from the caller's perspective: a failed send never rolls
// back the invitation or token that triggered it.
package email

import (
	"context"
	"time"

	"worklane.org/internal/obs"
)

// InvitationMessage carries everything the invitation template needs.
type InvitationMessage struct {
	RecipientEmail   string
	InviterName      string
	OrganizationName string
	Token            string
	URL              string
	ExpiresAt        time.Time
}

// PasswordResetMessage carries everything the reset template needs.
type PasswordResetMessage struct {
	RecipientEmail string
	RecipientName  string
	Token          string
	URL            string
	ExpiresAt      time.Time
}

// Dispatcher sends transactional mail.
type Dispatcher interface {
	SendInvitation(ctx context.Context, msg InvitationMessage) error
	SendPasswordReset(ctx context.Context, msg PasswordResetMessage) error
}

// LogDispatcher writes outbound mail as structured log lines instead of
// talking to an SMTP relay. It is the default in development and tests.
type LogDispatcher struct{}

var _ Dispatcher = LogDispatcher{}

func (LogDispatcher) SendInvitation(_ context.Context, msg InvitationMessage) error {
	obs.LogRequest(map[string]any{
		"ts":           time.Now().UTC().Format(time.RFC3339Nano),
		"type":         "email",
		"template":     "invitation",
		"recipient":    msg.RecipientEmail,
		"organization": msg.OrganizationName,
		"inviter":      msg.InviterName,
		"url":          msg.URL,
		"expires_at":   msg.ExpiresAt.Format(time.RFC3339),
	})
	return nil
}

func (LogDispatcher) SendPasswordReset(_ context.Context, msg PasswordResetMessage) error {
	obs.LogRequest(map[string]any{
		"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		"type":       "email",
		"template":   "password_reset",
		"recipient":  msg.RecipientEmail,
		"url":        msg.URL,
		"expires_at": msg.ExpiresAt.Format(time.RFC3339),
	})
	return nil
}
