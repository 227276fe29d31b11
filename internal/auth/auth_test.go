package auth

import (
	"testing"
	"time"

	"delivery-service/config"
	"delivery-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(ttl time.Duration) *Manager {
	return NewManager(config.AuthConfig{
		JWTSecret:  "test-secret",
		TokenTTL:   ttl,
		RefreshTTL: 24 * time.Hour,
	})
}

func TestTokenRoundTrip(t *testing.T) {
	m := testManager(time.Hour)
	u := &models.User{ID: 5, Name: "Rim", Email: "rim@example.com", Role: models.RoleClient}

	token, err := m.GenerateToken(u)
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(5), claims.UserID)
	assert.Equal(t, models.RoleClient, claims.Role)
	assert.Equal(t, "rim@example.com", claims.Email)
}

func TestExpiredTokenRejected(t *testing.T) {
	m := testManager(-time.Minute)
	u := &models.User{ID: 5, Role: models.RoleAdmin}

	token, err := m.GenerateToken(u)
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.Error(t, err)
}

func TestWrongSecretRejected(t *testing.T) {
	m := testManager(time.Hour)
	u := &models.User{ID: 5, Role: models.RoleAdmin}

	token, err := m.GenerateToken(u)
	require.NoError(t, err)

	other := NewManager(config.AuthConfig{JWTSecret: "other-secret", TokenTTL: time.Hour})
	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)

	assert.True(t, CheckPassword(hash, "s3cret-pass"))
	assert.False(t, CheckPassword(hash, "wrong"))
}
