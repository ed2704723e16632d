package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func withSecret(t *testing.T, secret string) {
	t.Helper()
	ResetSecretForTests()
	t.Setenv("FABRIC_AUTH_SECRET", secret)
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndValidateToken(t *testing.T) {
	withSecret(t, "test-secret")

	token, err := GenerateToken("u-1", []string{"VIEWER", "viewer", "AUDITOR", ""}, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "u-1" {
		t.Fatalf("subject = %q", claims.Subject)
	}
	if len(claims.Roles) != 3 {
		t.Fatalf("roles = %v, want trimmed and deduplicated", claims.Roles)
	}
	if claims.ID == "" {
		t.Fatal("jti missing")
	}
}

func TestGenerateTokenValidation(t *testing.T) {
	withSecret(t, "test-secret")
	if _, err := GenerateToken("", nil, time.Minute); err == nil {
		t.Fatal("empty user accepted")
	}
	if _, err := GenerateToken("u-1", nil, 0); err == nil {
		t.Fatal("zero ttl accepted")
	}
}

func TestGenerateTokenMissingSecret(t *testing.T) {
	withSecret(t, "")
	if _, err := GenerateToken("u-1", nil, time.Minute); err == nil {
		t.Fatal("missing secret accepted")
	}
}

func TestParseRejectsGarbageAndWrongKey(t *testing.T) {
	withSecret(t, "test-secret")
	if _, err := ParseAndValidate("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}

	token, err := GenerateToken("u-1", nil, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	withSecret(t, "different-secret")
	if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := ContextWithUser(context.Background(), "u-1", []string{"VIEWER"})
	id, ok := UserIDFromContext(ctx)
	if !ok || id != "u-1" {
		t.Fatalf("user = %q, %v", id, ok)
	}
	if !HasRole(ctx, "viewer") {
		t.Fatal("HasRole should match case-insensitively")
	}
	if HasRole(ctx, "AUDITOR") {
		t.Fatal("unexpected role")
	}
}
