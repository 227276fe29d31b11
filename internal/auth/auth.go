// Package auth is the token and password-hashing collaborator consumed by
// the boundary layer. The signing secret and lifetimes come from the config
// struct handed in at startup; there is no ambient secret.
package auth

import (
	"fmt"
	"time"

	"delivery-service/config"
	"delivery-service/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Claims holds the typed JWT payload.
type Claims struct {
	UserID int64       `json:"id"`
	Role   models.Role `json:"role"`
	Name   string      `json:"name"`
	Email  string      `json:"email"`
	jwt.RegisteredClaims
}

// Manager signs and verifies tokens for this service.
type Manager struct {
	secret     []byte
	tokenTTL   time.Duration
	refreshTTL time.Duration
}

func NewManager(cfg config.AuthConfig) *Manager {
	return &Manager{
		secret:     []byte(cfg.JWTSecret),
		tokenTTL:   cfg.TokenTTL,
		refreshTTL: cfg.RefreshTTL,
	}
}

// GenerateToken creates a signed access token for the given user.
func (m *Manager) GenerateToken(u *models.User) (string, error) {
	return m.sign(u, m.tokenTTL)
}

// GenerateRefreshToken creates a longer-lived token used to refresh access.
func (m *Manager) GenerateRefreshToken(u *models.User) (string, error) {
	return m.sign(u, m.refreshTTL)
}

func (m *Manager) sign(u *models.User, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: u.ID,
		Role:   u.Role,
		Name:   u.Name,
		Email:  u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// ValidateToken parses and validates a JWT string.
func (m *Manager) ValidateToken(t string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(t, &Claims{}, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// HashPassword returns a bcrypt hash of the plain-text password.
func HashPassword(plain string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares a bcrypt hash against the plain-text candidate.
func CheckPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
