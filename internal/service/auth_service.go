package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aryan0dhankhar/usersvc/internal/domain"
	"github.com/aryan0dhankhar/usersvc/internal/validation"
)

// ErrInvalidCredentials is returned for an unknown email or a wrong password
var ErrInvalidCredentials = errors.New("invalid credentials")

// TokenIssuer signs access tokens for authenticated users
type TokenIssuer interface {
	GenerateToken(userID, email, role string) (string, error)
}

// AuthService handles authentication operations
type AuthService struct {
	userRepo  domain.UserRepository
	hasher    PasswordHasher
	tokens    TokenIssuer
	expiresIn int
	logger    *slog.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	userRepo domain.UserRepository,
	hasher PasswordHasher,
	tokens TokenIssuer,
	expiresInSeconds int,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthService{
		userRepo:  userRepo,
		hasher:    hasher,
		tokens:    tokens,
		expiresIn: expiresInSeconds,
		logger:    logger,
	}
}

// LoginResult represents login response
type LoginResult struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"` // seconds
	TokenType string `json:"token_type"`
}

// Login authenticates a user and returns a JWT token
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}
	email = validation.NormalizeEmail(email)

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Info("login attempt with non-existent email", slog.String("email", email))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	// Users created without a credential cannot log in
	if user.PasswordHash == "" || !s.hasher.Compare(user.PasswordHash, password) {
		s.logger.Info("login failed with wrong password", slog.String("email", email))
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		s.logger.Error("failed to sign token", slog.String("error", err.Error()))
		return nil, errors.New("failed to generate token")
	}

	s.logger.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return &LoginResult{
		UserID:    user.ID,
		Email:     user.Email,
		Token:     token,
		ExpiresIn: s.expiresIn,
		TokenType: "Bearer",
	}, nil
}
