package auth

import (
	"testing"
	"time"
)

func setSecret(t *testing.T) {
	t.Helper()
	ResetSecretForTests()
	t.Setenv(secretEnvVariable, "unit-test-secret")
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndParseSessionToken(t *testing.T) {
	setSecret(t)

	session := Session{
		UserID:         "01J0000000000000000000USER",
		Email:          "Dana@Example.com",
		OrganizationID: "01J00000000000000000000ORG",
		Role:           "admin",
	}
	signed, expiresAt, err := GenerateSessionToken(session, time.Hour)
	if err != nil {
		t.Fatalf("GenerateSessionToken: %v", err)
	}
	if signed == "" {
		t.Fatal("expected a signed token")
	}
	if remaining := time.Until(expiresAt); remaining < 55*time.Minute || remaining > time.Hour {
		t.Fatalf("unexpected expiry window: %v", remaining)
	}

	claims, err := ParseAndValidate(signed)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	got := claims.Session()
	if got.UserID != session.UserID {
		t.Fatalf("user id = %q, want %q", got.UserID, session.UserID)
	}
	if got.Email != "dana@example.com" {
		t.Fatalf("email = %q, want lower-cased original", got.Email)
	}
	if got.OrganizationID != session.OrganizationID || got.Role != session.Role {
		t.Fatalf("unexpected session claims: %+v", got)
	}
}

func TestGenerateSessionTokenValidation(t *testing.T) {
	setSecret(t)

	if _, _, err := GenerateSessionToken(Session{}, time.Hour); err == nil {
		t.Fatal("expected error for missing user id")
	}
	if _, _, err := GenerateSessionToken(Session{UserID: "u1"}, 0); err == nil {
		t.Fatal("expected error for non-positive ttl")
	}
}

func TestParseAndValidateRejectsGarbage(t *testing.T) {
	setSecret(t)

	for _, tok := range []string{"", "   ", "not.a.jwt"} {
		if _, err := ParseAndValidate(tok); err == nil {
			t.Fatalf("expected rejection for %q", tok)
		}
	}
}

func TestParseAndValidateRejectsExpired(t *testing.T) {
	setSecret(t)

	signed, _, err := GenerateSessionToken(Session{UserID: "u1"}, time.Millisecond)
	if err != nil {
		t.Fatalf("GenerateSessionToken: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := ParseAndValidate(signed); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestMissingSecret(t *testing.T) {
	ResetSecretForTests()
	t.Setenv(secretEnvVariable, "")
	t.Cleanup(ResetSecretForTests)

	if _, _, err := GenerateSessionToken(Session{UserID: "u1"}, time.Hour); err == nil {
		t.Fatal("expected error when secret is unset")
	}
}
