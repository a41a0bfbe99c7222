package token

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIssueEncoding(t *testing.T) {
	iss := NewIssuer()
	tok, err := iss.Issue(PurposeInvitation, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	// 32 bytes of entropy encode to 43 characters without padding.
	if len(tok.Value) != 43 {
		t.Fatalf("token length %d, want 43", len(tok.Value))
	}
	if strings.ContainsAny(tok.Value, "+/=") {
		t.Fatalf("token %q is not URL-safe", tok.Value)
	}
	if tok.Purpose != PurposeInvitation {
		t.Fatalf("purpose %q", tok.Purpose)
	}
	if time.Until(tok.ExpiresAt) <= 0 {
		t.Fatalf("expected future expiry, got %v", tok.ExpiresAt)
	}
}

func TestIssueUnique(t *testing.T) {
	iss := NewIssuer()
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		tok, err := iss.Issue(PurposePasswordReset, time.Minute)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if _, dup := seen[tok.Value]; dup {
			t.Fatalf("duplicate token after %d issues", i)
		}
		seen[tok.Value] = struct{}{}
	}
}

func TestIssueDeterministicClock(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	iss := NewIssuer(
		WithClock(func() time.Time { return at }),
		WithReader(bytes.NewReader(make([]byte, secretBytes))),
	)
	tok, err := iss.Issue(PurposeInvitation, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if want := at.Add(7 * 24 * time.Hour); !tok.ExpiresAt.Equal(want) {
		t.Fatalf("expiry %v, want %v", tok.ExpiresAt, want)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestIssueEntropyFailure(t *testing.T) {
	iss := NewIssuer(WithReader(failingReader{}))
	if _, err := iss.Issue(PurposeInvitation, time.Hour); err == nil {
		t.Fatal("expected error from failing entropy source")
	}
}

func TestRecordValidity(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	used := now.Add(-time.Hour)

	rec := Record{ExpiresAt: now.Add(time.Hour)}
	if !rec.IsValid(now) {
		t.Fatal("fresh record should be valid")
	}
	rec.UsedAt = &used
	if rec.IsValid(now) {
		t.Fatal("used record should be invalid")
	}
	rec = Record{ExpiresAt: now.Add(-time.Minute)}
	if !rec.IsExpired(now) || rec.IsValid(now) {
		t.Fatal("expired record should be invalid")
	}
}
