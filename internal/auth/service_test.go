package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"worklane.org/internal/directory"
	"worklane.org/internal/email"
	"worklane.org/internal/obs"
	"worklane.org/internal/token"
)

type stubStore struct {
	findUserByEmail   func(ctx context.Context, email string) (directory.User, error)
	getUser           func(ctx context.Context, userID string) (directory.User, error)
	createUser        func(ctx context.Context, u directory.User) (directory.User, error)
	updatePassword    func(ctx context.Context, userID, hash string, at time.Time) error
	touchLastActive   func(ctx context.Context, userID string, at time.Time) error
	createEmailToken  func(ctx context.Context, rec token.Record) error
	findEmailToken    func(ctx context.Context, value, purpose string) (token.Record, error)
	consumeResetToken func(ctx context.Context, tokenID, userID, hash string, at time.Time) error
}

func (s *stubStore) FindUserByEmail(ctx context.Context, email string) (directory.User, error) {
	if s.findUserByEmail == nil {
		return directory.User{}, errors.New("unexpected FindUserByEmail")
	}
	return s.findUserByEmail(ctx, email)
}

func (s *stubStore) GetUser(ctx context.Context, userID string) (directory.User, error) {
	if s.getUser == nil {
		return directory.User{}, errors.New("unexpected GetUser")
	}
	return s.getUser(ctx, userID)
}

func (s *stubStore) CreateUser(ctx context.Context, u directory.User) (directory.User, error) {
	if s.createUser == nil {
		return directory.User{}, errors.New("unexpected CreateUser")
	}
	return s.createUser(ctx, u)
}

func (s *stubStore) UpdatePassword(ctx context.Context, userID, hash string, at time.Time) error {
	if s.updatePassword == nil {
		return errors.New("unexpected UpdatePassword")
	}
	return s.updatePassword(ctx, userID, hash, at)
}

func (s *stubStore) TouchLastActive(ctx context.Context, userID string, at time.Time) error {
	if s.touchLastActive == nil {
		return errors.New("unexpected TouchLastActive")
	}
	return s.touchLastActive(ctx, userID, at)
}

func (s *stubStore) CreateEmailToken(ctx context.Context, rec token.Record) error {
	if s.createEmailToken == nil {
		return errors.New("unexpected CreateEmailToken")
	}
	return s.createEmailToken(ctx, rec)
}

func (s *stubStore) FindEmailToken(ctx context.Context, value, purpose string) (token.Record, error) {
	if s.findEmailToken == nil {
		return token.Record{}, errors.New("unexpected FindEmailToken")
	}
	return s.findEmailToken(ctx, value, purpose)
}

func (s *stubStore) ConsumeResetToken(ctx context.Context, tokenID, userID, hash string, at time.Time) error {
	if s.consumeResetToken == nil {
		return errors.New("unexpected ConsumeResetToken")
	}
	return s.consumeResetToken(ctx, tokenID, userID, hash, at)
}

type stubDispatcher struct {
	invites []email.InvitationMessage
	resets  []email.PasswordResetMessage
	fail    error
}

func (d *stubDispatcher) SendInvitation(_ context.Context, msg email.InvitationMessage) error {
	if d.fail != nil {
		return d.fail
	}
	d.invites = append(d.invites, msg)
	return nil
}

func (d *stubDispatcher) SendPasswordReset(_ context.Context, msg email.PasswordResetMessage) error {
	if d.fail != nil {
		return d.fail
	}
	d.resets = append(d.resets, msg)
	return nil
}

func newTestService(t *testing.T, store Store, mail email.Dispatcher, opts ...ServiceOption) *Service {
	t.Helper()
	svc, err := NewService(store, token.NewIssuer(), mail, "https://app.worklane.test", opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func activeUser(t *testing.T, password string) directory.User {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return directory.User{
		ID:             "01J0000000000000000000USER",
		OrganizationID: "01J00000000000000000000ORG",
		FirstName:      "Dana",
		LastName:       "Reyes",
		Email:          "dana@example.com",
		PasswordHash:   hash,
		Role:           "admin",
		IsActive:       true,
	}
}

func TestLoginSuccess(t *testing.T) {
	setSecret(t)
	user := activeUser(t, "Str0ng&Pass")

	var touched bool
	store := &stubStore{
		findUserByEmail: func(_ context.Context, email string) (directory.User, error) {
			if email != "dana@example.com" {
				t.Fatalf("lookup email = %q, want normalized", email)
			}
			return user, nil
		},
		touchLastActive: func(_ context.Context, userID string, _ time.Time) error {
			if userID != user.ID {
				t.Fatalf("touched user %q", userID)
			}
			touched = true
			return nil
		},
	}
	svc := newTestService(t, store, &stubDispatcher{})

	result, err := svc.Login(context.Background(), "  Dana@Example.com ", "Str0ng&Pass")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !touched {
		t.Fatal("expected last-active bump")
	}
	if result.Token == "" {
		t.Fatal("expected a session token")
	}
	if result.User.LastActive == nil {
		t.Fatal("expected LastActive on the returned user")
	}

	claims, err := ParseAndValidate(result.Token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != user.ID || claims.OrganizationID != user.OrganizationID || claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	setSecret(t)
	user := activeUser(t, "Str0ng&Pass")

	cases := []struct {
		name     string
		store    *stubStore
		password string
	}{
		{
			name: "unknown email",
			store: &stubStore{
				findUserByEmail: func(context.Context, string) (directory.User, error) {
					return directory.User{}, ErrNotFound
				},
			},
			password: "Str0ng&Pass",
		},
		{
			name: "wrong password",
			store: &stubStore{
				findUserByEmail: func(context.Context, string) (directory.User, error) {
					return user, nil
				},
			},
			password: "Wrong&Pass1",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(t, tc.store, &stubDispatcher{})
			_, err := svc.Login(context.Background(), "dana@example.com", tc.password)
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("err = %v, want ErrUnauthorized", err)
			}
			if !strings.Contains(err.Error(), "invalid credentials") {
				t.Fatalf("message must be uniform, got %q", err)
			}
		})
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	setSecret(t)
	user := activeUser(t, "Str0ng&Pass")
	user.IsActive = false

	store := &stubStore{
		findUserByEmail: func(context.Context, string) (directory.User, error) {
			return user, nil
		},
	}
	svc := newTestService(t, store, &stubDispatcher{})

	// Wrong password on a disabled account must not reveal the disabled state.
	_, err := svc.Login(context.Background(), user.Email, "Wrong&Pass1")
	if err == nil || !strings.Contains(err.Error(), "invalid credentials") {
		t.Fatalf("err = %v, want invalid credentials", err)
	}

	_, err = svc.Login(context.Background(), user.Email, "Str0ng&Pass")
	if !errors.Is(err, ErrUnauthorized) || !strings.Contains(err.Error(), "disabled") {
		t.Fatalf("err = %v, want disabled account rejection", err)
	}
}

// loginMetric scrapes the registered counter for one result label.
func loginMetric(t *testing.T, result string) float64 {
	t.Helper()
	rr := httptest.NewRecorder()
	obs.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	prefix := fmt.Sprintf("logins_total{result=%q} ", result)
	for _, line := range strings.Split(rr.Body.String(), "\n") {
		if strings.HasPrefix(line, prefix) {
			v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, prefix)), 64)
			if err != nil {
				t.Fatalf("parse %q: %v", line, err)
			}
			return v
		}
	}
	return 0
}

var registerMetrics sync.Once

func TestLoginCountsOutcomes(t *testing.T) {
	registerMetrics.Do(obs.Init)
	setSecret(t)
	user := activeUser(t, "Str0ng&Pass")

	store := &stubStore{
		findUserByEmail: func(context.Context, string) (directory.User, error) {
			return user, nil
		},
		touchLastActive: func(context.Context, string, time.Time) error { return nil },
	}
	svc := newTestService(t, store, &stubDispatcher{})

	okBefore := loginMetric(t, "ok")
	deniedBefore := loginMetric(t, "denied")

	if _, err := svc.Login(context.Background(), user.Email, "Str0ng&Pass"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.Login(context.Background(), user.Email, "Wrong&Pass1"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}

	if got := loginMetric(t, "ok") - okBefore; got != 1 {
		t.Fatalf("ok logins delta = %v, want 1", got)
	}
	if got := loginMetric(t, "denied") - deniedBefore; got != 1 {
		t.Fatalf("denied logins delta = %v, want 1", got)
	}
}

func TestRegisterCollectsValidationProblems(t *testing.T) {
	svc := newTestService(t, &stubStore{}, &stubDispatcher{})

	_, err := svc.Register(context.Background(), RegisterRequest{Password: "weak"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	// Four missing fields plus multiple password policy violations.
	if len(verr.Errors) < 6 {
		t.Fatalf("expected collected problems, got %v", verr.Errors)
	}
}

func TestRegisterSuccess(t *testing.T) {
	var created directory.User
	store := &stubStore{
		createUser: func(_ context.Context, u directory.User) (directory.User, error) {
			created = u
			u.OrganizationName = "Acme"
			return u, nil
		},
	}
	svc := newTestService(t, store, &stubDispatcher{})

	user, err := svc.Register(context.Background(), RegisterRequest{
		FirstName:      "Dana",
		LastName:       "Reyes",
		Email:          "Dana@Example.com",
		Password:       "Str0ng&Pass",
		OrganizationID: "org-1",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a generated id")
	}
	if created.Email != "dana@example.com" {
		t.Fatalf("email = %q, want normalized", created.Email)
	}
	if created.Role != defaultRole {
		t.Fatalf("role = %q, want default", created.Role)
	}
	if !created.IsActive {
		t.Fatal("new accounts start active")
	}
	if created.PasswordHash == "Str0ng&Pass" || created.PasswordHash == "" {
		t.Fatal("password must be stored hashed")
	}
	if user.OrganizationName != "Acme" {
		t.Fatal("expected the stored row back")
	}
}

func TestRegisterEmailConflict(t *testing.T) {
	store := &stubStore{
		createUser: func(context.Context, directory.User) (directory.User, error) {
			return directory.User{}, ErrConflict
		},
	}
	svc := newTestService(t, store, &stubDispatcher{})

	_, err := svc.Register(context.Background(), RegisterRequest{
		FirstName:      "Dana",
		LastName:       "Reyes",
		Email:          "dana@example.com",
		Password:       "Str0ng&Pass",
		OrganizationID: "org-1",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestChangePassword(t *testing.T) {
	user := activeUser(t, "Curr3nt&Pass")

	t.Run("wrong current password", func(t *testing.T) {
		store := &stubStore{
			getUser: func(context.Context, string) (directory.User, error) { return user, nil },
		}
		svc := newTestService(t, store, &stubDispatcher{})
		err := svc.ChangePassword(context.Background(), user.ID, "nope", "N3w&Passwd")
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("err = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("weak replacement", func(t *testing.T) {
		store := &stubStore{
			getUser: func(context.Context, string) (directory.User, error) { return user, nil },
		}
		svc := newTestService(t, store, &stubDispatcher{})
		err := svc.ChangePassword(context.Background(), user.ID, "Curr3nt&Pass", "short")
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("err = %v, want ValidationError", err)
		}
	})

	t.Run("success", func(t *testing.T) {
		var storedHash string
		store := &stubStore{
			getUser: func(context.Context, string) (directory.User, error) { return user, nil },
			updatePassword: func(_ context.Context, userID, hash string, _ time.Time) error {
				if userID != user.ID {
					t.Fatalf("updated user %q", userID)
				}
				storedHash = hash
				return nil
			},
		}
		svc := newTestService(t, store, &stubDispatcher{})
		if err := svc.ChangePassword(context.Background(), user.ID, "Curr3nt&Pass", "N3w&Passwd"); err != nil {
			t.Fatalf("ChangePassword: %v", err)
		}
		if !VerifyPassword(storedHash, "N3w&Passwd") {
			t.Fatal("stored hash must match the new password")
		}
	})
}

func TestForgotPasswordUnknownEmailIsSilent(t *testing.T) {
	store := &stubStore{
		findUserByEmail: func(context.Context, string) (directory.User, error) {
			return directory.User{}, ErrNotFound
		},
	}
	mail := &stubDispatcher{}
	svc := newTestService(t, store, mail)

	if err := svc.ForgotPassword(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if len(mail.resets) != 0 {
		t.Fatal("no email may be sent for unknown addresses")
	}
}

func TestForgotPasswordIssuesToken(t *testing.T) {
	user := activeUser(t, "Str0ng&Pass")
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	var stored token.Record
	store := &stubStore{
		findUserByEmail: func(context.Context, string) (directory.User, error) { return user, nil },
		createEmailToken: func(_ context.Context, rec token.Record) error {
			stored = rec
			return nil
		},
	}
	mail := &stubDispatcher{}
	svc := newTestService(t, store, mail, WithClock(func() time.Time { return now }))

	if err := svc.ForgotPassword(context.Background(), user.Email); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if stored.Purpose != token.PurposePasswordReset {
		t.Fatalf("purpose = %q", stored.Purpose)
	}
	if stored.UserID != user.ID || stored.Email != user.Email {
		t.Fatalf("unexpected record: %+v", stored)
	}
	if len(mail.resets) != 1 {
		t.Fatalf("expected one reset email, got %d", len(mail.resets))
	}
	msg := mail.resets[0]
	if msg.Token != stored.Token {
		t.Fatal("email must carry the issued token")
	}
	if !strings.Contains(msg.URL, "reset-password?token=") {
		t.Fatalf("unexpected reset URL %q", msg.URL)
	}
}

func TestForgotPasswordSurvivesMailFailure(t *testing.T) {
	user := activeUser(t, "Str0ng&Pass")
	store := &stubStore{
		findUserByEmail:  func(context.Context, string) (directory.User, error) { return user, nil },
		createEmailToken: func(context.Context, token.Record) error { return nil },
	}
	mail := &stubDispatcher{fail: errors.New("smtp down")}
	svc := newTestService(t, store, mail)

	if err := svc.ForgotPassword(context.Background(), user.Email); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
}

func TestResetPassword(t *testing.T) {
	user := activeUser(t, "Old&Passw0rd")
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	used := now.Add(-time.Hour)

	valid := token.Record{
		ID:        "tok-1",
		UserID:    user.ID,
		Email:     user.Email,
		Token:     "opaque",
		Purpose:   token.PurposePasswordReset,
		ExpiresAt: now.Add(time.Hour),
	}

	t.Run("unknown token", func(t *testing.T) {
		store := &stubStore{
			findEmailToken: func(context.Context, string, string) (token.Record, error) {
				return token.Record{}, ErrNotFound
			},
		}
		svc := newTestService(t, store, &stubDispatcher{}, WithClock(func() time.Time { return now }))
		if err := svc.ResetPassword(context.Background(), "opaque", "N3w&Passwd"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		rec := valid
		rec.ExpiresAt = now.Add(-time.Minute)
		store := &stubStore{
			findEmailToken: func(context.Context, string, string) (token.Record, error) { return rec, nil },
		}
		svc := newTestService(t, store, &stubDispatcher{}, WithClock(func() time.Time { return now }))
		if err := svc.ResetPassword(context.Background(), "opaque", "N3w&Passwd"); !errors.Is(err, ErrExpired) {
			t.Fatalf("err = %v, want ErrExpired", err)
		}
	})

	t.Run("used token", func(t *testing.T) {
		rec := valid
		rec.UsedAt = &used
		store := &stubStore{
			findEmailToken: func(context.Context, string, string) (token.Record, error) { return rec, nil },
		}
		svc := newTestService(t, store, &stubDispatcher{}, WithClock(func() time.Time { return now }))
		if err := svc.ResetPassword(context.Background(), "opaque", "N3w&Passwd"); !errors.Is(err, ErrConflict) {
			t.Fatalf("err = %v, want ErrConflict", err)
		}
	})

	t.Run("success consumes atomically", func(t *testing.T) {
		var consumedToken, consumedUser, newHash string
		store := &stubStore{
			findEmailToken: func(_ context.Context, value, purpose string) (token.Record, error) {
				if value != "opaque" || purpose != token.PurposePasswordReset {
					t.Fatalf("lookup (%q, %q)", value, purpose)
				}
				return valid, nil
			},
			getUser: func(context.Context, string) (directory.User, error) { return user, nil },
			consumeResetToken: func(_ context.Context, tokenID, userID, hash string, _ time.Time) error {
				consumedToken, consumedUser, newHash = tokenID, userID, hash
				return nil
			},
		}
		svc := newTestService(t, store, &stubDispatcher{}, WithClock(func() time.Time { return now }))
		if err := svc.ResetPassword(context.Background(), "opaque", "N3w&Passwd"); err != nil {
			t.Fatalf("ResetPassword: %v", err)
		}
		if consumedToken != valid.ID || consumedUser != user.ID {
			t.Fatalf("consumed (%q, %q)", consumedToken, consumedUser)
		}
		if !VerifyPassword(newHash, "N3w&Passwd") {
			t.Fatal("stored hash must match the new password")
		}
	})
}
