package invite

import (
	"context"
	"time"

	"worklane.org/internal/directory"
	"worklane.org/internal/token"
)

// AcceptParams is everything the store needs to commit an acceptance in one
// transaction: the provisioned user, the names to persist onto the
// invitation, and the token to retire.
type AcceptParams struct {
	InvitationID string
	TokenID      string
	FirstName    string
	LastName     string
	User         directory.User
	AcceptedAt   time.Time
}

// Store is the persistence surface for the invitation lifecycle.
// Implementations return the package sentinels for missing rows and
// uniqueness violations.
type Store interface {
	// CreateInvitation inserts the invitation and its email token together.
	CreateInvitation(ctx context.Context, inv Invitation, rec token.Record) error
	GetInvitation(ctx context.Context, invitationID, orgID string) (Invitation, error)
	// FindByToken matches the invitation whose current token equals value,
	// regardless of status.
	FindByToken(ctx context.Context, value string) (Invitation, error)
	// FindPendingByEmail matches an invitation whose stored status is still
	// pending, lapsed or not. A lapsed one blocks a duplicate send until the
	// sweep flips it.
	FindPendingByEmail(ctx context.Context, orgID, email string) (Invitation, error)
	ListPending(ctx context.Context, orgID string, now time.Time) ([]Invitation, error)

	// FindInvitationToken looks up an invitation-purpose email token by its
	// raw value.
	FindInvitationToken(ctx context.Context, value string) (token.Record, error)
	// ActiveUserEmailExists ignores soft-deleted users.
	ActiveUserEmailExists(ctx context.Context, email string) (bool, error)

	MarkCancelled(ctx context.Context, invitationID string) error
	// Resend overwrites the invitation's token and expiry and inserts the
	// replacement email token in one transaction. The superseded token row
	// stays behind for audit.
	Resend(ctx context.Context, inv Invitation, rec token.Record) error
	// Accept commits user creation, organization membership, the invitation
	// status flip and the token consumption atomically.
	Accept(ctx context.Context, p AcceptParams) (directory.User, error)
	// SweepExpired flips every pending invitation whose expiry has passed
	// and reports how many rows changed.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}
