package service

import (
	"context"
	"errors"
	"fmt"

	"delivery-service/internal/auth"
	"delivery-service/internal/models"
	"delivery-service/internal/util"

	"go.uber.org/zap"
)

// ErrInvalidCredentials is returned on a failed login. The same value covers
// unknown email and wrong password so callers cannot probe for accounts.
var ErrInvalidCredentials = errors.New("invalid email or password")

// AuthService handles login and token refresh
type AuthService struct {
	store  UserStore
	tokens *auth.Manager
	logger *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(store UserStore, tokens *auth.Manager) *AuthService {
	return &AuthService{
		store:  store,
		tokens: tokens,
		logger: util.GetLogger(),
	}
}

// LoginResult carries the issued tokens and the caller's public identity
type LoginResult struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refresh_token"`
	User         *models.User `json:"user"`
}

// Login verifies credentials and issues an access and a refresh token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Login")
	defer span.End()

	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password required: %w", models.ErrValidation)
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, password) {
		util.LoginAttemptsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidCredentials
	}

	result, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}

	util.LoginAttemptsTotal.WithLabelValues("success").Inc()
	s.logger.Info("User logged in",
		zap.Int64("user_id", user.ID),
		zap.String("role", string(user.Role)))
	return result, nil
}

// Refresh exchanges a valid refresh token for a fresh token pair. The user
// is re-read so a role change or deletion takes effect immediately.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	claims, err := s.tokens.ValidateToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issueTokens(user)
}

func (s *AuthService) issueTokens(user *models.User) (*LoginResult, error) {
	token, err := s.tokens.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	refresh, err := s.tokens.GenerateRefreshToken(user)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &LoginResult{Token: token, RefreshToken: refresh, User: user}, nil
}
