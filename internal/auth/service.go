package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"worklane.org/internal/directory"
	"worklane.org/internal/email"
	"worklane.org/internal/ids"
	"worklane.org/internal/obs"
	"worklane.org/internal/token"
)

const (
	defaultSessionTTL = 7 * 24 * time.Hour
	defaultResetTTL   = 24 * time.Hour

	defaultRole = "member"
)

// Service implements the credential lifecycle: login, registration and the
// password change and reset flows.
type Service struct {
	store      Store
	issuer     *token.Issuer
	mail       email.Dispatcher
	baseURL    string
	sessionTTL time.Duration
	resetTTL   time.Duration
	now        func() time.Time
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

// WithSessionTTL overrides the session token lifetime.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithResetTTL overrides the password reset token lifetime.
func WithResetTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.resetTTL = ttl
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
		store:      store,
		issuer:     issuer,
		mail:       mail,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		sessionTTL: defaultSessionTTL,
		resetTTL:   defaultResetTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LoginResult carries the signed session token and the authenticated user.
type LoginResult struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expiresAt"`
	User      directory.User `json:"user"`
}

// Login verifies the credentials and mints a session token. Every credential
// failure is reported identically so callers cannot probe which emails exist.
func (s *Service) Login(ctx context.Context, emailAddr, password string) (LoginResult, error) {
	emailAddr = strings.TrimSpace(strings.ToLower(emailAddr))
	if emailAddr == "" || password == "" {
		obs.CountLogin("denied")
		return LoginResult{}, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}
	user, err := s.store.FindUserByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.CountLogin("denied")
			return LoginResult{}, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
		}
		return LoginResult{}, fmt.Errorf("find user: %w", err)
	}
	if !VerifyPassword(user.PasswordHash, password) {
		obs.CountLogin("denied")
		return LoginResult{}, fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	}
	// The disabled check runs after password verification so that a wrong
	// password on a disabled account still reads as invalid credentials.
	if !user.IsActive {
		obs.CountLogin("denied")
		return LoginResult{}, fmt.Errorf("%w: account is disabled", ErrUnauthorized)
	}

	now := s.now()
	if err := s.store.TouchLastActive(ctx, user.ID, now); err != nil {
		return LoginResult{}, fmt.Errorf("touch last active: %w", err)
	}
	user.LastActive = &now

	signed, expiresAt, err := GenerateSessionToken(Session{
		UserID:         user.ID,
		Email:          user.Email,
		OrganizationID: user.OrganizationID,
		Role:           user.Role,
	}, s.sessionTTL)
	if err != nil {
		return LoginResult{}, fmt.Errorf("generate session token: %w", err)
	}
	obs.CountLogin("ok")
	return LoginResult{Token: signed, ExpiresAt: expiresAt, User: user}, nil
}

// RegisterRequest is the payload for self-service signup.
type RegisterRequest struct {
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	OrganizationID string `json:"organizationId"`
	Role           string `json:"role"`
	Department     string `json:"department"`
}

// Register creates an active account. The email must not be in use by a
// non-deleted user.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (directory.User, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.OrganizationID = strings.TrimSpace(req.OrganizationID)
	req.Role = strings.TrimSpace(req.Role)

	var problems []string
	if req.FirstName == "" {
		problems = append(problems, "first name is required")
	}
	if req.LastName == "" {
		problems = append(problems, "last name is required")
	}
	if req.Email == "" {
		problems = append(problems, "email is required")
	}
	if req.OrganizationID == "" {
		problems = append(problems, "organization id is required")
	}
	problems = append(problems, ValidatePasswordStrength(req.Password)...)
	if len(problems) > 0 {
		return directory.User{}, &ValidationError{Errors: problems}
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return directory.User{}, err
	}
	role := req.Role
	if role == "" {
		role = defaultRole
	}
	now := s.now()
	user := directory.User{
		ID:             ids.New(),
		OrganizationID: req.OrganizationID,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		PasswordHash:   hash,
		Role:           role,
		Department:     strings.TrimSpace(req.Department),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created, err := s.store.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return directory.User{}, fmt.Errorf("%w: email is already in use", ErrConflict)
		}
		return directory.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// CurrentUser loads the caller's own profile.
func (s *Service) CurrentUser(ctx context.Context, userID string) (directory.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return directory.User{}, fmt.Errorf("%w: user", ErrNotFound)
	}
	return s.store.GetUser(ctx, userID)
}

// Logout is a no-op server side. Session tokens are stateless; clients drop
// the token and it ages out at its expiry.
func (s *Service) Logout(ctx context.Context, userID string) error {
	return nil
}

// ChangePassword rotates the password after proving the current one.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user", ErrNotFound)
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !VerifyPassword(user.PasswordHash, current) {
		return fmt.Errorf("%w: current password is incorrect", ErrUnauthorized)
	}
	if problems := ValidatePasswordStrength(next); len(problems) > 0 {
		return &ValidationError{Errors: problems}
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePassword(ctx, user.ID, hash, s.now()); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// ForgotPassword mints a reset token and emails it. The outcome is identical
// whether or not the address belongs to an account.
func (s *Service) ForgotPassword(ctx context.Context, emailAddr string) error {
	emailAddr = strings.TrimSpace(strings.ToLower(emailAddr))
	if emailAddr == "" {
		return &ValidationError{Errors: []string{"email is required"}}
	}
	user, err := s.store.FindUserByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}

	tok, err := s.issuer.Issue(token.PurposePasswordReset, s.resetTTL)
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}
	now := s.now()
	rec := token.Record{
		ID:        ids.New(),
		UserID:    user.ID,
		Email:     user.Email,
		Token:     tok.Value,
		Purpose:   tok.Purpose,
		ExpiresAt: tok.ExpiresAt,
		CreatedAt: now,
	}
	if err := s.store.CreateEmailToken(ctx, rec); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	msg := email.PasswordResetMessage{
		RecipientEmail: user.Email,
		RecipientName:  user.DisplayName(),
		Token:          tok.Value,
		URL:            s.baseURL + "/reset-password?token=" + tok.Value,
		ExpiresAt:      tok.ExpiresAt,
	}
	if err := s.mail.SendPasswordReset(ctx, msg); err != nil {
		// Delivery failures must not reveal whether the account exists.
		obs.LogRequest(map[string]any{
			"level": "warn",
			"event": "password_reset_email_failed",
			"error": err.Error(),
		})
	}
	return nil
}

// ResetPassword redeems a reset token and sets the new password atomically.
func (s *Service) ResetPassword(ctx context.Context, tokenValue, next string) error {
	tokenValue = strings.TrimSpace(tokenValue)
	if tokenValue == "" {
		return fmt.Errorf("%w: reset token", ErrNotFound)
	}
	rec, err := s.store.FindEmailToken(ctx, tokenValue, token.PurposePasswordReset)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: reset token", ErrNotFound)
		}
		return fmt.Errorf("find reset token: %w", err)
	}
	if rec.IsExpired(s.now()) {
		return fmt.Errorf("%w: reset token", ErrExpired)
	}
	if rec.IsUsed() {
		return fmt.Errorf("%w: reset token already used", ErrConflict)
	}
	if problems := ValidatePasswordStrength(next); len(problems) > 0 {
		return &ValidationError{Errors: problems}
	}
	user, err := s.store.GetUser(ctx, rec.UserID)
	if err != nil {
		return err
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.store.ConsumeResetToken(ctx, rec.ID, user.ID, hash, s.now()); err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	return nil
}
