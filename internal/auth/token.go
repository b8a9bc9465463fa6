package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims includes the registered claims and a custom Username claim, the
// only claim this service mandates
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// TokenService signs and verifies identity tokens binding a username to a
// token payload. No server-side session state exists: the token is the
// sole trust artifact.
type TokenService struct {
	secret []byte
}

// NewTokenService returns a TokenService signing with the provided secret.
// The secret is loaded once at process start and immutable thereafter.
func NewTokenService(secret []byte) *TokenService {
	return &TokenService{secret: secret}
}

// Sign issues an HS256 token carrying username
func (s *TokenService) Sign(username string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: username,
	})

	return token.SignedString(s.secret)
}

// Verify checks the token signature and returns the embedded username.
// Any failure yields ErrInvalidToken.
func (s *TokenService) Verify(tokenString string) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	return claims.Username, nil
}
