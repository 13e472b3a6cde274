// Package auth turns bearer tokens issued by the web front-end into caller
// identities. Tokens are HS256 JWTs signed with the shared NEXTAUTH_SECRET;
// nothing is stored server-side.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("auth: authorization token required")
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrExpiredToken = errors.New("auth: token has expired")
)

// Identity is the caller described by a verified token.
type Identity struct {
	Email string
	Name  string
	// AccessToken is the caller's delegated GitHub token, if the sign-in
	// flow attached one.
	AccessToken string
}

// TokenVerifier validates a raw bearer token and returns the caller identity.
type TokenVerifier interface {
	Verify(token string) (Identity, error)
}

// Claims is the token payload written by the front-end session callback.
type Claims struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	AccessToken string `json:"accessToken,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HS256 tokens against a shared secret.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier returns a verifier for tokens signed with secret.
func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	return &JWTVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}, nil
}

// Verify checks signature and expiry and extracts the identity. A token
// without an email claim is rejected.
func (v *JWTVerifier) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	var claims Claims
	_, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return Identity{}, ErrExpiredToken
	default:
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Email == "" {
		return Identity{}, fmt.Errorf("%w: missing email claim", ErrInvalidToken)
	}
	return Identity{
		Email:       claims.Email,
		Name:        claims.Name,
		AccessToken: claims.AccessToken,
	}, nil
}

// BearerToken returns the credential from an Authorization header value
// ("Bearer <token>"), or "" when the header is absent or malformed.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
