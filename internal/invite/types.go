// Package invite implements the organization invitation lifecycle. An
// invitation is created pending and ends in exactly one of the accepted,
// cancelled or expired states; terminal states never reopen.
package invite

import (
	"errors"
	"time"
)

// Invitation statuses. Pending is the only state with outgoing transitions.
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("resource conflict")
	ErrExpired      = errors.New("invitation expired")
)

// Invitation is one offer to join an organization. FirstName and LastName are
// empty until acceptance persists the invitee's submitted names.
type Invitation struct {
	ID               string     `json:"id"`
	OrganizationID   string     `json:"organizationId"`
	OrganizationName string     `json:"organizationName,omitempty"`
	Email            string     `json:"email"`
	Role             string     `json:"role"`
	Department       string     `json:"department,omitempty"`
	Location         string     `json:"location,omitempty"`
	FirstName        string     `json:"firstName,omitempty"`
	LastName         string     `json:"lastName,omitempty"`
	InvitedBy        string     `json:"invitedBy"`
	InviterName      string     `json:"inviterName,omitempty"`
	Token            string     `json:"-"`
	Status           string     `json:"status"`
	ExpiresAt        time.Time  `json:"expiresAt"`
	CreatedAt        time.Time  `json:"createdAt"`
	AcceptedAt       *time.Time `json:"acceptedAt,omitempty"`
}

// Validation is the read-only projection returned by token validation. It is
// deliberately permissive so a client can render a friendly expired or
// already-handled message instead of a bare not-found.
type Validation struct {
	Invitation
	IsPending bool `json:"isPending"`
	IsExpired bool `json:"isExpired"`
}
