package commerce

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/cartpulse/cartpulse/internal/apperr"
	"github.com/cartpulse/cartpulse/internal/auth"
	"github.com/cartpulse/cartpulse/internal/models"
	"github.com/cartpulse/cartpulse/internal/storage"
)

// AuthService handles registration and login.
type AuthService struct {
	users  storage.UserRepo
	tokens *auth.TokenManager
	logger *zap.Logger
}

func NewAuthService(users storage.UserRepo, tokens *auth.TokenManager, logger *zap.Logger) *AuthService {
	return &AuthService{users: users, tokens: tokens, logger: logger}
}

// Register creates an account and returns the user with a fresh token.
func (s *AuthService) Register(ctx context.Context, email, password string) (*models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", apperr.Validation("a valid email is required")
	}
	if len(password) < 8 {
		return nil, "", apperr.Validation("password must be at least 8 characters")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, "", apperr.Internal("failed to hash password").WithCause(err)
	}

	user, err := s.users.CreateUser(ctx, email, hash, models.RoleUser)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateEmail) {
			return nil, "", apperr.Conflict("email %s is already registered", email)
		}
		return nil, "", apperr.Internal("failed to create user").WithCause(err)
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, "", apperr.Internal("failed to issue token").WithCause(err)
	}

	s.logger.Info("User registered", zap.String("user_id", user.ID))
	return user, token, nil
}

// Login verifies credentials and returns the user with a fresh token. The
// same error is returned for unknown emails and bad passwords.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, "", apperr.Internal("failed to load user").WithCause(err)
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, password) {
		return nil, "", apperr.Unauthorized("invalid email or password")
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, "", apperr.Internal("failed to issue token").WithCause(err)
	}
	return user, token, nil
}

// GetUser loads an account by id.
func (s *AuthService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal("failed to load user").WithCause(err)
	}
	if user == nil {
		return nil, apperr.NotFound("user %s not found", id)
	}
	return user, nil
}
