package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-nextauth-secret"

func sign(t *testing.T, secret string, method jwt.SigningMethod, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func validClaims() Claims {
	return Claims{
		Email:       "ada@example.com",
		Name:        "Ada",
		AccessToken: "gho_delegated",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestNewJWTVerifier_RequiresSecret(t *testing.T) {
	_, err := NewJWTVerifier("")
	assert.Error(t, err)
}

func TestJWTVerifier_Verify(t *testing.T) {
	v, err := NewJWTVerifier(testSecret)
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		id, err := v.Verify(sign(t, testSecret, jwt.SigningMethodHS256, validClaims()))
		require.NoError(t, err)
		assert.Equal(t, Identity{Email: "ada@example.com", Name: "Ada", AccessToken: "gho_delegated"}, id)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := v.Verify("")
		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := v.Verify(sign(t, "other-secret", jwt.SigningMethodHS256, validClaims()))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		c := validClaims()
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		_, err := v.Verify(sign(t, testSecret, jwt.SigningMethodHS256, c))
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("unexpected algorithm", func(t *testing.T) {
		_, err := v.Verify(sign(t, testSecret, jwt.SigningMethodHS512, validClaims()))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing email", func(t *testing.T) {
		c := validClaims()
		c.Email = ""
		_, err := v.Verify(sign(t, testSecret, jwt.SigningMethodHS256, c))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify("not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer abc"))
	assert.Equal(t, "", BearerToken(""))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken("Bearer"))
}
