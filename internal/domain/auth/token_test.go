package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTripKeepsRoles(t *testing.T) {
	id := Identity{UserID: "u-1", Email: "m@example.com", Username: "m", Roles: []Role{RoleManager, RoleEmployee}}
	token, err := GenerateToken("secret", ClaimsFor(id), time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	claims, err := ParseToken("secret", token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	got := claims.Identity()
	if got.UserID != "u-1" || !got.HasRole(RoleManager) || !got.HasRole(RoleEmployee) {
		t.Fatalf("unexpected identity: %+v", got)
	}
	if got.MustChangePassword {
		t.Fatal("expected no pending password change")
	}

	id.MustChangePassword = true
	token, err = GenerateToken("secret", ClaimsFor(id), time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	claims, err = ParseToken("secret", token)
	if err != nil || !claims.Identity().MustChangePassword {
		t.Fatalf("expected the pending change to survive the round trip, got %+v %v", claims, err)
	}
}

func TestTemporaryPasswordIsLongAndUnique(t *testing.T) {
	a, b := TemporaryPassword(), TemporaryPassword()
	if len(a) < MinPasswordLength || a == b {
		t.Fatalf("unexpected temporary passwords %q %q", a, b)
	}
}

func TestParseTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	token, err := GenerateToken("secret", Claims{UserID: "u-1"}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("other", token); err == nil {
		t.Fatal("expected signature failure")
	}

	expired, err := GenerateToken("secret", Claims{UserID: "u-1"}, -time.Minute)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("secret", expired); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if err := CheckPassword(hash, "correct horse"); err != nil {
		t.Fatalf("expected match: %v", err)
	}
	if err := CheckPassword(hash, "wrong"); err == nil {
		t.Fatal("expected mismatch")
	}
}
