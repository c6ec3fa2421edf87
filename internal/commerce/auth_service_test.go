package commerce

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cartpulse/cartpulse/internal/apperr"
	"github.com/cartpulse/cartpulse/internal/auth"
	"github.com/cartpulse/cartpulse/internal/models"
	"github.com/cartpulse/cartpulse/internal/storage"
)

func newAuthService(t *testing.T) (*AuthService, *auth.TokenManager) {
	t.Helper()
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	return NewAuthService(storage.NewMemoryStore(), tokens, zap.NewNop()), tokens
}

func TestRegisterAndLogin(t *testing.T) {
	svc, tokens := newAuthService(t)
	ctx := context.Background()

	user, token, err := svc.Register(ctx, "Shopper@Example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "shopper@example.com" {
		t.Errorf("email = %q, want lowercased", user.Email)
	}
	if user.Role != models.RoleUser {
		t.Errorf("role = %s, want user", user.Role)
	}
	if user.PasswordHash == "hunter2hunter2" {
		t.Error("password stored in plaintext")
	}

	identity, err := tokens.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if identity.UserID != user.ID {
		t.Errorf("token subject = %s, want %s", identity.UserID, user.ID)
	}

	if _, _, err := svc.Login(ctx, "shopper@example.com", "hunter2hunter2"); err != nil {
		t.Errorf("Login: %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "dup@example.com", "password1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, _, err := svc.Register(ctx, "dup@example.com", "password2")
	if !apperr.IsCode(err, apperr.CodeConflict) {
		t.Errorf("got %v, want CONFLICT", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"no email", "", "longenough"},
		{"bad email", "not-an-email", "longenough"},
		{"short password", "ok@example.com", "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Register(ctx, tt.email, tt.password)
			if !apperr.IsCode(err, apperr.CodeBadRequest) {
				t.Errorf("got %v, want BAD_REQUEST", err)
			}
		})
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "who@example.com", "correcthorse"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Unknown email and wrong password produce the same error.
	_, _, unknownErr := svc.Login(ctx, "nobody@example.com", "correcthorse")
	if !apperr.IsCode(unknownErr, apperr.CodeUnauthorized) {
		t.Errorf("unknown email: got %v, want UNAUTHORIZED", unknownErr)
	}
	_, _, wrongErr := svc.Login(ctx, "who@example.com", "wrongpassword")
	if !apperr.IsCode(wrongErr, apperr.CodeUnauthorized) {
		t.Errorf("wrong password: got %v, want UNAUTHORIZED", wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Errorf("error messages differ: %q vs %q", unknownErr, wrongErr)
	}
}
