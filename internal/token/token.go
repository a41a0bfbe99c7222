// Package token issues the single-use secrets that back invitation and
// password-reset links.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"
)

// Purposes tag a token with the flow it belongs to. Lookups always match on
// both the token string and its purpose.
const (
	PurposeInvitation    = "invitation"
	PurposePasswordReset = "password_reset"
)

const secretBytes = 32

// Token is a freshly issued secret with its expiry.
type Token struct {
	Value     string
	Purpose   string
	ExpiresAt time.Time
}

// Record is the persisted form of an issued token. UserID is empty for
// invitation tokens because the invitee does not exist yet.
type Record struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id,omitempty"`
	Email     string     `json:"email"`
	Token     string     `json:"-"`
	Purpose   string     `json:"purpose"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// IsExpired reports whether the record's expiry has passed at the given time.
func (r Record) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// IsUsed reports whether the record has been consumed.
func (r Record) IsUsed() bool {
	return r.UsedAt != nil
}

// IsValid combines the two checks: a token is valid while it is neither
// expired nor used.
func (r Record) IsValid(now time.Time) bool {
	return !r.IsExpired(now) && !r.IsUsed()
}

// Issuer mints cryptographically random, URL-safe tokens.
type Issuer struct {
	rand io.Reader
	now  func() time.Time
}

// Option configures Issuer behavior.
type Option func(*Issuer)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// WithReader overrides the entropy source (useful for tests).
func WithReader(r io.Reader) Option {
	return func(i *Issuer) {
		if r != nil {
			i.rand = r
		}
	}
}

// NewIssuer constructs an Issuer backed by crypto/rand.
func NewIssuer(opts ...Option) *Issuer {
	iss := &Issuer{rand: rand.Reader, now: time.Now}
	for _, opt := range opts {
		opt(iss)
	}
	return iss
}

// Issue returns a token with 256 bits of entropy encoded without padding.
// The only failure mode is the entropy source itself, which callers treat
// as fatal for the operation that needed the token.
func (i *Issuer) Issue(purpose string, ttl time.Duration) (Token, error) {
	buf := make([]byte, secretBytes)
	if _, err := io.ReadFull(i.rand, buf); err != nil {
		return Token{}, fmt.Errorf("read entropy: %w", err)
	}
	return Token{
		Value:     base64.RawURLEncoding.EncodeToString(buf),
		Purpose:   purpose,
		ExpiresAt: i.now().UTC().Add(ttl),
	}, nil
}
