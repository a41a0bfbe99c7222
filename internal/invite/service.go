package invite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"worklane.org/internal/auth"
	"worklane.org/internal/directory"
	"worklane.org/internal/email"
	"worklane.org/internal/ids"
	"worklane.org/internal/obs"
	"worklane.org/internal/token"
)

const (
	defaultExpiryDays = 7
	resendExpiryDays  = 7
	minExpiryDays     = 1
	maxExpiryDays     = 30
)

// Service drives the invitation state machine.
type Service struct {
	store   Store
	issuer  *token.Issuer
	mail    email.Dispatcher
	baseURL string
	now     func() time.Time
}

// ServiceOption customizes service construction.
type ServiceOption func(*Service)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, issuer *token.Issuer, mail email.Dispatcher, baseURL string, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if issuer == nil {
		return nil, errors.New("token issuer is required")
	}
	if mail == nil {
		mail = email.LogDispatcher{}
	}
	s := &Service{
		store:   store,
		issuer:  issuer,
		mail:    mail,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SendRequest describes a new invitation. InviterName and OrganizationName
// are display values resolved by the caller from the inviter's profile.
type SendRequest struct {
	OrganizationID   string
	OrganizationName string
	InvitedBy        string
	InviterName      string
	Email            string
	Role             string
	Department       string
	Location         string
	ExpiryDays       int
}

// Send creates a pending invitation with a fresh single-use token and hands
// it to the mail collaborator. A pending invitation or an active user with
// the same email blocks the send.
func (s *Service) Send(ctx context.Context, req SendRequest) (Invitation, error) {
	req.OrganizationID = strings.TrimSpace(req.OrganizationID)
	req.InvitedBy = strings.TrimSpace(req.InvitedBy)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Role = strings.TrimSpace(req.Role)
	if req.OrganizationID == "" {
		return Invitation{}, fmt.Errorf("%w: organization id is required", ErrInvalidInput)
	}
	if req.Email == "" {
		return Invitation{}, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if req.Role == "" {
		return Invitation{}, fmt.Errorf("%w: role is required", ErrInvalidInput)
	}
	// Zero means the caller left the field out.
	if req.ExpiryDays == 0 {
		req.ExpiryDays = defaultExpiryDays
	}
	if req.ExpiryDays < minExpiryDays || req.ExpiryDays > maxExpiryDays {
		return Invitation{}, fmt.Errorf("%w: expiry days must be between %d and %d", ErrInvalidInput, minExpiryDays, maxExpiryDays)
	}

	exists, err := s.store.ActiveUserEmailExists(ctx, req.Email)
	if err != nil {
		return Invitation{}, fmt.Errorf("check existing user: %w", err)
	}
	if exists {
		return Invitation{}, fmt.Errorf("%w: a user with this email already exists", ErrConflict)
	}
	// Status alone decides the conflict: a lapsed invitation the sweep has not
	// flipped yet still blocks a duplicate send.
	if _, err := s.store.FindPendingByEmail(ctx, req.OrganizationID, req.Email); err == nil {
		return Invitation{}, fmt.Errorf("%w: a pending invitation already exists for this email", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return Invitation{}, fmt.Errorf("check pending invitation: %w", err)
	}

	now := s.now()
	ttl := time.Duration(req.ExpiryDays) * 24 * time.Hour
	tok, err := s.issuer.Issue(token.PurposeInvitation, ttl)
	if err != nil {
		return Invitation{}, fmt.Errorf("issue invitation token: %w", err)
	}
	// Expiry follows the service clock, not the issuer's.
	expiresAt := now.Add(ttl)
	inv := Invitation{
		ID:               ids.New(),
		OrganizationID:   req.OrganizationID,
		OrganizationName: req.OrganizationName,
		Email:            req.Email,
		Role:             req.Role,
		Department:       strings.TrimSpace(req.Department),
		Location:         strings.TrimSpace(req.Location),
		InvitedBy:        req.InvitedBy,
		InviterName:      req.InviterName,
		Token:            tok.Value,
		Status:           StatusPending,
		ExpiresAt:        expiresAt,
		CreatedAt:        now,
	}
	// UserID stays empty: the invitee does not exist yet.
	rec := token.Record{
		ID:        ids.New(),
		Email:     req.Email,
		Token:     tok.Value,
		Purpose:   tok.Purpose,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := s.store.CreateInvitation(ctx, inv, rec); err != nil {
		if errors.Is(err, ErrConflict) {
			return Invitation{}, fmt.Errorf("%w: a pending invitation already exists for this email", ErrConflict)
		}
		return Invitation{}, fmt.Errorf("create invitation: %w", err)
	}
	obs.CountInvitation("sent")

	s.dispatch(ctx, inv)
	return inv, nil
}

// AcceptRequest is the invitee's signup payload.
type AcceptRequest struct {
	Token           string
	FirstName       string
	LastName        string
	Password        string
	ConfirmPassword string
}

// Accept redeems an invitation token and provisions the invitee. User
// creation, membership, the status flip and token consumption commit
// together or not at all.
func (s *Service) Accept(ctx context.Context, req AcceptRequest) (directory.User, error) {
	req.Token = strings.TrimSpace(req.Token)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)

	var problems []string
	if req.FirstName == "" {
		problems = append(problems, "first name is required")
	}
	if req.LastName == "" {
		problems = append(problems, "last name is required")
	}
	if req.Password != req.ConfirmPassword {
		problems = append(problems, "passwords do not match")
	}
	problems = append(problems, auth.ValidatePasswordStrength(req.Password)...)
	if len(problems) > 0 {
		return directory.User{}, &auth.ValidationError{Errors: problems}
	}
	if req.Token == "" {
		return directory.User{}, fmt.Errorf("%w: invalid token", ErrNotFound)
	}

	rec, err := s.store.FindInvitationToken(ctx, req.Token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return directory.User{}, fmt.Errorf("%w: invalid token", ErrNotFound)
		}
		return directory.User{}, fmt.Errorf("find invitation token: %w", err)
	}
	now := s.now()
	if rec.IsExpired(now) {
		return directory.User{}, fmt.Errorf("%w: invitation token", ErrExpired)
	}
	if rec.IsUsed() {
		return directory.User{}, fmt.Errorf("%w: invitation token already used", ErrConflict)
	}

	// The invitation's token field must still match: a superseded token from
	// a resend, or a cancelled or swept invitation, fails here.
	inv, err := s.store.FindByToken(ctx, req.Token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return directory.User{}, fmt.Errorf("%w: invitation", ErrNotFound)
		}
		return directory.User{}, fmt.Errorf("find invitation: %w", err)
	}
	if inv.Status != StatusPending {
		return directory.User{}, fmt.Errorf("%w: invitation", ErrNotFound)
	}

	// Re-check under the race with a concurrent signup. The unique index on
	// active emails backstops this inside the transaction.
	exists, err := s.store.ActiveUserEmailExists(ctx, inv.Email)
	if err != nil {
		return directory.User{}, fmt.Errorf("check existing user: %w", err)
	}
	if exists {
		return directory.User{}, fmt.Errorf("%w: a user with this email already exists", ErrConflict)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return directory.User{}, err
	}
	user := directory.User{
		ID:             ids.New(),
		OrganizationID: inv.OrganizationID,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          inv.Email,
		PasswordHash:   hash,
		Role:           inv.Role,
		Department:     inv.Department,
		Location:       inv.Location,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created, err := s.store.Accept(ctx, AcceptParams{
		InvitationID: inv.ID,
		TokenID:      rec.ID,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		User:         user,
		AcceptedAt:   now,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return directory.User{}, fmt.Errorf("%w: a user with this email already exists", ErrConflict)
		}
		return directory.User{}, fmt.Errorf("accept invitation: %w", err)
	}
	obs.CountInvitation("accepted")
	return created, nil
}

// Validate looks up an invitation by raw token without gating on status or
// expiry and reports the computed flags alongside the record.
func (s *Service) Validate(ctx context.Context, tokenValue string) (Validation, error) {
	tokenValue = strings.TrimSpace(tokenValue)
	if tokenValue == "" {
		return Validation{}, fmt.Errorf("%w: invitation", ErrNotFound)
	}
	inv, err := s.store.FindByToken(ctx, tokenValue)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Validation{}, fmt.Errorf("%w: invitation", ErrNotFound)
		}
		return Validation{}, fmt.Errorf("find invitation: %w", err)
	}
	now := s.now()
	return Validation{
		Invitation: inv,
		IsPending:  inv.Status == StatusPending,
		IsExpired:  now.After(inv.ExpiresAt),
	}, nil
}

// Cancel moves a pending invitation to cancelled.
func (s *Service) Cancel(ctx context.Context, invitationID, orgID string) error {
	inv, err := s.pendingInvitation(ctx, invitationID, orgID)
	if err != nil {
		return err
	}
	if err := s.store.MarkCancelled(ctx, inv.ID); err != nil {
		return fmt.Errorf("cancel invitation: %w", err)
	}
	obs.CountInvitation("cancelled")
	return nil
}

// Resend replaces a pending invitation's token and restarts its expiry
// window. The previous email token row is left behind, permanently unmatched
// by any invitation.
func (s *Service) Resend(ctx context.Context, invitationID, orgID string) (Invitation, error) {
	inv, err := s.pendingInvitation(ctx, invitationID, orgID)
	if err != nil {
		return Invitation{}, err
	}
	tok, err := s.issuer.Issue(token.PurposeInvitation, resendExpiryDays*24*time.Hour)
	if err != nil {
		return Invitation{}, fmt.Errorf("issue invitation token: %w", err)
	}
	now := s.now()
	expiresAt := now.Add(resendExpiryDays * 24 * time.Hour)
	inv.Token = tok.Value
	inv.ExpiresAt = expiresAt
	rec := token.Record{
		ID:        ids.New(),
		Email:     inv.Email,
		Token:     tok.Value,
		Purpose:   tok.Purpose,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := s.store.Resend(ctx, inv, rec); err != nil {
		return Invitation{}, fmt.Errorf("resend invitation: %w", err)
	}
	obs.CountInvitation("resent")

	s.dispatch(ctx, inv)
	return inv, nil
}

// ListPending returns live pending invitations, newest first. Expiry is
// evaluated against the clock, so lapsed invitations disappear from this
// listing before the sweep flips their stored status.
func (s *Service) ListPending(ctx context.Context, orgID string) ([]Invitation, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, fmt.Errorf("%w: organization id is required", ErrInvalidInput)
	}
	return s.store.ListPending(ctx, orgID, s.now())
}

// SweepExpired flips lapsed pending invitations to expired. Safe to run on a
// schedule; a second run right after finds nothing.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.store.SweepExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired invitations: %w", err)
	}
	for i := int64(0); i < n; i++ {
		obs.CountInvitation("expired")
	}
	return n, nil
}

func (s *Service) pendingInvitation(ctx context.Context, invitationID, orgID string) (Invitation, error) {
	invitationID = strings.TrimSpace(invitationID)
	orgID = strings.TrimSpace(orgID)
	if invitationID == "" || orgID == "" {
		return Invitation{}, fmt.Errorf("%w: invitation", ErrNotFound)
	}
	inv, err := s.store.GetInvitation(ctx, invitationID, orgID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Invitation{}, fmt.Errorf("%w: invitation", ErrNotFound)
		}
		return Invitation{}, fmt.Errorf("get invitation: %w", err)
	}
	if inv.Status != StatusPending {
		return Invitation{}, fmt.Errorf("%w: invitation is %s", ErrConflict, inv.Status)
	}
	return inv, nil
}

func (s *Service) dispatch(ctx context.Context, inv Invitation) {
	msg := email.InvitationMessage{
		RecipientEmail:   inv.Email,
		InviterName:      inv.InviterName,
		OrganizationName: inv.OrganizationName,
		Token:            inv.Token,
		URL:              s.baseURL + "/accept-invitation?token=" + inv.Token,
		ExpiresAt:        inv.ExpiresAt,
	}
	if err := s.mail.SendInvitation(ctx, msg); err != nil {
		// Fire and forget: a failed send never rolls back the invitation.
		obs.LogRequest(map[string]any{
			"level":         "warn",
			"event":         "invitation_email_failed",
			"invitation_id": inv.ID,
			"error":         err.Error(),
		})
	}
}
