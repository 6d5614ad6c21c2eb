package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret")

	tokenString, err := m.GenerateToken("u1", time.Hour)
	require.NoError(t, err)

	claims, err := m.VerifyToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.NotNil(t, claims.ExpiresAt)
}

func TestVerifyTokenExpired(t *testing.T) {
	m := NewJWTManager("test-secret")

	tokenString, err := m.GenerateToken("u1", -time.Minute)
	require.NoError(t, err)

	_, err = m.VerifyToken(tokenString)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	m := NewJWTManager("test-secret")
	other := NewJWTManager("another-secret")

	tokenString, err := m.GenerateToken("u1", time.Hour)
	require.NoError(t, err)

	_, err = other.VerifyToken(tokenString)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTokenExpired)
}
