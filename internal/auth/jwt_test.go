package auth

import (
	"testing"
	"time"

	"github.com/cartpulse/cartpulse/internal/models"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)
	user := &models.User{ID: "u1", Email: "a@example.com", Role: models.RoleAdmin}

	token, err := m.Issue(user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	identity, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if identity.UserID != "u1" || identity.Email != "a@example.com" {
		t.Errorf("identity = %+v", identity)
	}
	if !identity.Role.IsAdmin() {
		t.Error("admin role lost in round trip")
	}
}

func TestTokenWrongSecret(t *testing.T) {
	issuer := NewTokenManager("secret-a", time.Hour)
	verifier := NewTokenManager("secret-b", time.Hour)

	token, err := issuer.Issue(&models.User{ID: "u1", Role: models.RoleUser})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := verifier.Verify(token); err == nil {
		t.Error("token verified with the wrong secret")
	}
}

func TestTokenExpired(t *testing.T) {
	m := NewTokenManager("secret", -time.Minute)

	token, err := m.Issue(&models.User{ID: "u1", Role: models.RoleUser})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := m.Verify(token); err == nil {
		t.Error("expired token verified")
	}
}

func TestTokenGarbage(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)
	if _, err := m.Verify("not.a.token"); err == nil {
		t.Error("garbage token verified")
	}
}

func TestUnknownRoleDowngraded(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)

	token, err := m.Issue(&models.User{ID: "u1", Role: models.Role("superuser")})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	identity, err := m.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if identity.Role != models.RoleUser {
		t.Errorf("role = %s, want downgrade to user", identity.Role)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correcthorse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "correcthorse" {
		t.Fatal("hash equals plaintext")
	}
	if !CheckPassword(hash, "correcthorse") {
		t.Error("correct password rejected")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("wrong password accepted")
	}
}
